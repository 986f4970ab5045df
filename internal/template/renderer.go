package template

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"theiacloud/pkg/logging"
)

// Template file names. An override directory replaces a template by
// providing a file with the same name.
const (
	templateDeployment               = "deployment.yaml"
	templateDeploymentOAuth2         = "deployment-oauth2.yaml"
	templateService                  = "service.yaml"
	templateServiceInternal          = "service-internal.yaml"
	templateConfigMapProxy           = "configmap-proxy.yaml"
	templateConfigMapEmails          = "configmap-emails.yaml"
	templatePersistentVolumeClaim    = "persistentvolumeclaim.yaml"
	templatePersistentVolumeMinikube = "persistentvolume-minikube.yaml"
)

//go:embed templates/*.yaml templates/*.tpl
var embedded embed.FS

// Renderer executes the child resource templates.
type Renderer struct {
	mu          sync.RWMutex
	templates   *template.Template
	overrideDir string
}

// NewRenderer parses the embedded templates and, when overrideDir is not
// empty, the overrides found there.
func NewRenderer(overrideDir string) (*Renderer, error) {
	r := &Renderer{overrideDir: overrideDir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all templates. On failure the previous set stays active.
func (r *Renderer) Reload() error {
	templates, err := parse(r.overrideDir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates = templates
	r.mu.Unlock()
	return nil
}

func parse(overrideDir string) (*template.Template, error) {
	root := template.New("theiacloud").Option("missingkey=error")
	funcs := sprig.TxtFuncMap()
	funcs["include"] = func(name string, data interface{}) (string, error) {
		var buf bytes.Buffer
		if err := root.ExecuteTemplate(&buf, name, data); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	root.Funcs(funcs)

	if _, err := root.ParseFS(embedded, "templates/*.yaml", "templates/*.tpl"); err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	if overrideDir == "" {
		return root, nil
	}

	entries, err := os.ReadDir(overrideDir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("Templates", "Template override directory %s does not exist", overrideDir)
			return root, nil
		}
		return nil, fmt.Errorf("failed to read template directory %s: %w", overrideDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		path := filepath.Join(overrideDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
		if _, err := root.New(entry.Name()).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
		}
		logging.Debug("Templates", "Using template override %s", path)
	}
	return root, nil
}

// Render executes the named template.
func (r *Renderer) Render(name string, values Values) ([]byte, error) {
	r.mu.RLock()
	templates := r.templates
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, values); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// decode renders the named template into a typed object.
func decode[T any](r *Renderer, name string, values Values) (*T, error) {
	raw, err := r.Render(name, values)
	if err != nil {
		return nil, err
	}
	obj := new(T)
	if err := yaml.Unmarshal(raw, obj); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", name, err)
	}
	return obj, nil
}

// Deployment renders the session deployment, with the oauth2-proxy sidecar
// when withOAuth2Proxy is set.
func (r *Renderer) Deployment(values Values, withOAuth2Proxy bool) (*appsv1.Deployment, error) {
	name := templateDeployment
	if withOAuth2Proxy {
		name = templateDeploymentOAuth2
	}
	return decode[appsv1.Deployment](r, name, values)
}

// Service renders the external service. With the oauth2-proxy sidecar the
// service targets the proxy port instead of the app port.
func (r *Renderer) Service(values Values, withOAuth2Proxy bool) (*corev1.Service, error) {
	if withOAuth2Proxy {
		values.TargetPort = OAuth2ProxyPort
	}
	return decode[corev1.Service](r, templateService, values)
}

// InternalService renders the cluster internal service exposing the app
// and monitor ports.
func (r *Renderer) InternalService(values Values) (*corev1.Service, error) {
	return decode[corev1.Service](r, templateServiceInternal, values)
}

// ProxyConfigMap renders the oauth2-proxy config map skeleton.
func (r *Renderer) ProxyConfigMap(values Values) (*corev1.ConfigMap, error) {
	return decode[corev1.ConfigMap](r, templateConfigMapProxy, values)
}

// EmailsConfigMap renders the authenticated emails config map.
func (r *Renderer) EmailsConfigMap(values Values) (*corev1.ConfigMap, error) {
	return decode[corev1.ConfigMap](r, templateConfigMapEmails, values)
}

// PersistentVolumeClaim renders a workspace claim.
func (r *Renderer) PersistentVolumeClaim(values Values) (*corev1.PersistentVolumeClaim, error) {
	return decode[corev1.PersistentVolumeClaim](r, templatePersistentVolumeClaim, values)
}

// MinikubePersistentVolume renders a hostPath volume for minikube clusters.
func (r *Renderer) MinikubePersistentVolume(values Values) (*corev1.PersistentVolume, error) {
	return decode[corev1.PersistentVolume](r, templatePersistentVolumeMinikube, values)
}

func isTemplateFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".tpl":
		return true
	default:
		return false
	}
}
