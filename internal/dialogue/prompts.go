package dialogue

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptCatalogue []byte

type promptDef struct {
	JSON        bool      `yaml:"json"`
	Temperature float32   `yaml:"temperature"`
	Tier        ModelTier `yaml:"tier"`
	System      string    `yaml:"system"`
	User        string    `yaml:"user"`
}

type promptTemplate struct {
	def    promptDef
	system *template.Template
	user   *template.Template
}

// Prompts renders the embedded prompt catalogue.
type Prompts struct {
	templates map[string]*promptTemplate
}

const (
	OpGender        = "gender"
	OpFirstQuestion = "first_question"
	OpNextQuestion  = "next_question"
	OpGrade         = "grade"
	OpOffTopic      = "off_topic"
	OpTutor         = "tutor"
)

func LoadPrompts() (*Prompts, error) {
	return parsePrompts(promptCatalogue)
}

func parsePrompts(data []byte) (*Prompts, error) {
	var defs map[string]promptDef
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal > %w", err)
	}

	p := &Prompts{templates: make(map[string]*promptTemplate, len(defs))}
	for _, op := range []string{OpGender, OpFirstQuestion, OpNextQuestion, OpGrade, OpOffTopic, OpTutor} {
		def, ok := defs[op]
		if !ok {
			return nil, fmt.Errorf("prompt %q is missing", op)
		}
		system, err := template.New(op + ".system").Option("missingkey=error").Parse(def.System)
		if err != nil {
			return nil, fmt.Errorf("parse %s system > %w", op, err)
		}
		user, err := template.New(op + ".user").Option("missingkey=error").Parse(def.User)
		if err != nil {
			return nil, fmt.Errorf("parse %s user > %w", op, err)
		}
		p.templates[op] = &promptTemplate{def: def, system: system, user: user}
	}
	return p, nil
}

// Render fills the named prompt with data.
func (p *Prompts) Render(op string, data any) (Prompt, error) {
	t, ok := p.templates[op]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt %q", op)
	}

	var system, user strings.Builder
	if err := t.system.Execute(&system, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s system > %w", op, err)
	}
	if err := t.user.Execute(&user, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s user > %w", op, err)
	}

	tier := t.def.Tier
	if tier == "" {
		tier = TierFast
	}
	return Prompt{
		Operation:   op,
		System:      strings.TrimSpace(system.String()),
		User:        strings.TrimSpace(user.String()),
		JSON:        t.def.JSON,
		Temperature: t.def.Temperature,
		Tier:        tier,
	}, nil
}
