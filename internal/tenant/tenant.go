// Package tenant resolves a tenant identifier into the persona and knowledge
// excerpt a session is grounded on.
package tenant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrTenantNotFound = errors.New("tenant not found")

const (
	DefaultLanguage = "ar"
	DefaultRefusal  = "والله حالياً ما عندي معلومة أكيدة عن هالنقطة، ودك أحولك للمختص يخدمك؟"
	DefaultApology  = "حدث خطأ، لحظة وأكون معك."
)

// Persona is the fixed identity a tenant's sessions speak with.
type Persona struct {
	Name     string   `yaml:"name" json:"name"`
	VoiceID  string   `yaml:"voice_id" json:"voice_id"`
	Language string   `yaml:"language" json:"language"`
	Rules    []string `yaml:"rules" json:"rules"`
	Refusal  string   `yaml:"refusal" json:"refusal"`
	Apology  string   `yaml:"apology" json:"apology"`
}

// Profile is everything a session needs to know about its tenant.
type Profile struct {
	ID      string
	Name    string
	Persona Persona
	// Knowledge is the tenant's knowledge excerpt, passed to the model verbatim.
	Knowledge string
}

type document struct {
	TenantName    string    `yaml:"tenant_name"`
	Persona       Persona   `yaml:"persona"`
	KnowledgeBase yaml.Node `yaml:"knowledge_base"`
}

// Resolver loads tenant documents from <dir>/<id>_db.{yaml,yml,json}.
type Resolver struct {
	// Language is the persona language used when a document names none.
	Language string

	dir          string
	aliases      map[string]string
	defaultVoice string
	log          *slog.Logger
}

// NewResolver creates a Resolver. aliases maps public tenant identifiers to
// document names; defaultVoice is used when a persona names no voice.
func NewResolver(dir string, aliases map[string]string, defaultVoice string) *Resolver {
	norm := make(map[string]string, len(aliases))
	for k, v := range aliases {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Resolver{
		Language:     DefaultLanguage,
		dir:          dir,
		aliases:      norm,
		defaultVoice: defaultVoice,
		log:          slog.Default().With("component", "tenant"),
	}
}

// Resolve loads the profile for id. There is no fallback tenant: an unknown
// id is an error.
func (r *Resolver) Resolve(id string) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if name, ok := r.aliases[key]; ok {
		key = name
	}
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return Profile{}, fmt.Errorf("%w: %q", ErrTenantNotFound, id)
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(r.dir, key+"_db"+ext)
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Profile{}, fmt.Errorf("tenant %q: read %s: %w", id, path, err)
		}
		p, err := r.parse(id, b)
		if err != nil {
			return Profile{}, fmt.Errorf("tenant %q: parse %s: %w", id, path, err)
		}
		r.log.Info("tenant resolved", "tenant", id, "file", path, "name", p.Name)
		return p, nil
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrTenantNotFound, id)
}

func (r *Resolver) parse(id string, b []byte) (Profile, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Profile{}, err
	}
	knowledge, err := renderKnowledge(&doc.KnowledgeBase)
	if err != nil {
		return Profile{}, fmt.Errorf("knowledge_base: %w", err)
	}

	p := Profile{
		ID:        id,
		Name:      doc.TenantName,
		Persona:   doc.Persona,
		Knowledge: knowledge,
	}
	if p.Name == "" {
		p.Name = id
	}
	if p.Persona.Name == "" {
		p.Persona.Name = p.Name
	}
	if p.Persona.VoiceID == "" {
		p.Persona.VoiceID = r.defaultVoice
	}
	if p.Persona.Language == "" {
		p.Persona.Language = r.Language
	}
	if p.Persona.Refusal == "" {
		p.Persona.Refusal = DefaultRefusal
	}
	if p.Persona.Apology == "" {
		p.Persona.Apology = DefaultApology
	}
	return p, nil
}

// renderKnowledge keeps a scalar knowledge base as written and serializes a
// structured one to compact JSON.
func renderKnowledge(n *yaml.Node) (string, error) {
	if n.Kind == 0 {
		return "", nil
	}
	if n.Kind == yaml.ScalarNode {
		return strings.TrimSpace(n.Value), nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
