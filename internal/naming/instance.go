package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// InstanceIndex extracts the instance index from a name produced by
// ForAppDefinition or ForAppDefinitionWithSuffix. Names of the older
// "<index>-..." form carry the filler prefix in front of the index, which
// is stripped before parsing.
func InstanceIndex(name string) (int, error) {
	segments := strings.Split(name, "-")

	var raw string
	if segments[0] == instancePrefix {
		if len(segments) < 2 {
			return 0, fmt.Errorf("name %q has no instance segment", name)
		}
		raw = segments[1]
	} else {
		raw = strings.TrimPrefix(segments[0], string(validNamePrefix))
	}

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("name %q has a malformed instance index %q: %w", name, raw, err)
	}
	return index, nil
}

// AppSelector is the value of the app label selecting the pods of an instance.
func AppSelector(appDefinitionName string, instance int) string {
	return AsValidName(appDefinitionName + "-" + strconv.Itoa(instance))
}

// SessionAppSelector is the value of the app label selecting the pods of a session.
func SessionAppSelector(sessionName, sessionUID string) string {
	return AsValidName(sessionName + "-" + sessionUID)
}
