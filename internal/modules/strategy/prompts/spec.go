package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/contentplan-backend/internal/platform/promptstyle"
)

//go:embed specs/*.yaml
var specFiles embed.FS

// Spec is the declaration format of a prompt file. System and User are Go
// templates over Input.
type Spec struct {
	Name    PromptName `yaml:"name"`
	Version int        `yaml:"version"`
	System  string     `yaml:"system"`
	User    string     `yaml:"user"`
	Require []string   `yaml:"require"`
	Style   string     `yaml:"style"`
}

type Template struct {
	Name     PromptName
	Version  int
	Style    string
	System   func(Input) string
	User     func(Input) string
	Validate Validator
}

var (
	mu       sync.RWMutex
	registry = map[PromptName]Template{}
	loadOnce sync.Once
	loadErr  error
)

// MakeTemplate compiles a Spec into a Template.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", s.Name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", s.Name, err)
	}
	render := func(t *template.Template, in Input) string {
		var b bytes.Buffer
		_ = t.Execute(&b, in)
		return strings.TrimSpace(b.String())
	}

	var validators []Validator
	for _, field := range s.Require {
		v, ok := fieldValidators[field]
		if !ok {
			return Template{}, fmt.Errorf("%s: unknown required field %q", s.Name, field)
		}
		validators = append(validators, v)
	}

	tt := Template{
		Name:    s.Name,
		Version: s.Version,
		Style:   s.Style,
		System:  func(in Input) string { return render(sysT, in) },
		User:    func(in Input) string { return render(userT, in) },
	}
	if len(validators) > 0 {
		tt.Validate = func(in Input) error {
			for _, v := range validators {
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return tt, nil
}

func Register(t Template) {
	mu.Lock()
	registry[t.Name] = t
	mu.Unlock()
}

// ParseSpec decodes one YAML prompt declaration.
func ParseSpec(raw []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// LoadEmbedded registers every prompt shipped with the binary. It is safe to
// call more than once.
func LoadEmbedded() error {
	loadOnce.Do(func() {
		loadErr = fs.WalkDir(specFiles, "specs", func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || path.Ext(p) != ".yaml" {
				return err
			}
			raw, err := specFiles.ReadFile(p)
			if err != nil {
				return err
			}
			s, err := ParseSpec(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			t, err := MakeTemplate(s)
			if err != nil {
				return err
			}
			Register(t)
			return nil
		})
	})
	return loadErr
}

// Build renders a registered prompt.
func Build(name PromptName, in Input) (Prompt, error) {
	if err := LoadEmbedded(); err != nil {
		return Prompt{}, err
	}
	mu.RLock()
	t, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
		}
	}
	system := t.System(in)
	if t.Style != "" {
		system = promptstyle.ApplySystem(system, t.Style)
	}
	return Prompt{
		Name:    string(t.Name),
		Version: t.Version,
		System:  system,
		User:    t.User(in),
	}, nil
}
