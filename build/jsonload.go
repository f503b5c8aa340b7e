package build

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aledsdavies/gramforge/lalr"
)

// grammarDefinitionSchema is the JSON Schema a GrammarDefinition document
// must satisfy before LoadGrammarDefinitionJSON decodes it (spec.md §6's
// supplemented "textual grammar-definition format" feature).
const grammarDefinitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["options", "terminals", "nonterminals", "productions"],
  "properties": {
    "options": {
      "type": "object",
      "required": ["grammarName"],
      "properties": {
        "grammarName": {"type": "string", "minLength": 1},
        "caseSensitive": {"type": "boolean"},
        "autoWhitespace": {"type": "boolean"},
        "comments": {
          "type": "object",
          "properties": {
            "line": {"type": "string"},
            "blockStart": {"type": "string"},
            "blockEnd": {"type": "string"}
          }
        },
        "canResolveReduceReduce": {"type": "boolean"},
        "operatorScope": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "symbols"],
            "properties": {
              "type": {"enum": ["nonAssociative", "leftAssociative", "rightAssociative", "precedenceOnly"]},
              "symbols": {"type": "array", "items": {"type": "string"}}
            }
          }
        }
      }
    },
    "terminals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "pattern"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "pattern": {"type": "string"},
          "hidden": {"type": "boolean"},
          "specialName": {"type": "string"}
        }
      }
    },
    "nonterminals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "specialName": {"type": "string"}
        }
      }
    },
    "productions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["head", "members"],
        "properties": {
          "head": {"type": "string", "minLength": 1},
          "precedence": {"type": "string"},
          "members": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["kind", "name"],
              "properties": {
                "kind": {"enum": ["terminal", "nonterminal"]},
                "name": {"type": "string", "minLength": 1}
              }
            }
          }
        }
      }
    },
    "groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "startLiteral"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "startLiteral": {"type": "string"},
          "endLiteral": {"type": "string"},
          "advanceByCharacter": {"type": "boolean"},
          "endsOnEndOfInput": {"type": "boolean"},
          "keepEndToken": {"type": "boolean"},
          "nesting": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "noise": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "pattern"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "pattern": {"type": "string"}
        }
      }
    },
    "renames": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

// jsonGrammarDefinition mirrors GrammarDefinition's shape with JSON tags;
// kept separate so GrammarDefinition itself carries no encoding concerns.
type jsonGrammarDefinition struct {
	Options struct {
		GrammarName            string `json:"grammarName"`
		CaseSensitive           bool   `json:"caseSensitive"`
		AutoWhitespace          bool   `json:"autoWhitespace"`
		CanResolveReduceReduce  bool   `json:"canResolveReduceReduce"`
		Comments                struct {
			Line       string `json:"line"`
			BlockStart string `json:"blockStart"`
			BlockEnd   string `json:"blockEnd"`
		} `json:"comments"`
		OperatorScope []struct {
			Type    string   `json:"type"`
			Symbols []string `json:"symbols"`
		} `json:"operatorScope"`
	} `json:"options"`
	Terminals []struct {
		Name        string `json:"name"`
		Pattern     string `json:"pattern"`
		Hidden      bool   `json:"hidden"`
		SpecialName string `json:"specialName"`
	} `json:"terminals"`
	Nonterminals []struct {
		Name        string `json:"name"`
		SpecialName string `json:"specialName"`
	} `json:"nonterminals"`
	Productions []struct {
		Head       string `json:"head"`
		Precedence string `json:"precedence"`
		Members    []struct {
			Kind string `json:"kind"`
			Name string `json:"name"`
		} `json:"members"`
	} `json:"productions"`
	Groups []struct {
		Name               string   `json:"name"`
		StartLiteral       string   `json:"startLiteral"`
		EndLiteral         string   `json:"endLiteral"`
		AdvanceByCharacter bool     `json:"advanceByCharacter"`
		EndsOnEndOfInput   bool     `json:"endsOnEndOfInput"`
		KeepEndToken       bool     `json:"keepEndToken"`
		Nesting            []string `json:"nesting"`
	} `json:"groups"`
	Noise []struct {
		Name    string `json:"name"`
		Pattern string `json:"pattern"`
	} `json:"noise"`
	Renames map[string]string `json:"renames"`
}

func associativityFromJSON(s string) (lalr.Associativity, error) {
	switch s {
	case "nonAssociative":
		return lalr.NonAssociative, nil
	case "leftAssociative":
		return lalr.LeftAssociative, nil
	case "rightAssociative":
		return lalr.RightAssociative, nil
	case "precedenceOnly":
		return lalr.PrecedenceOnly, nil
	default:
		return 0, fmt.Errorf("build: unknown associativity %q", s)
	}
}

func memberKindFromJSON(s string) (MemberKind, error) {
	switch s {
	case "terminal":
		return MemberTerminal, nil
	case "nonterminal":
		return MemberNonterminal, nil
	default:
		return 0, fmt.Errorf("build: unknown member kind %q", s)
	}
}

// LoadGrammarDefinitionJSON validates data against grammarDefinitionSchema
// and decodes it into a GrammarDefinition (spec.md §6's supplemented JSON
// front end, grounded on the teacher's jsonschema/v5 usage in
// core/types/validation.go).
func LoadGrammarDefinitionJSON(data []byte) (*GrammarDefinition, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("grammar-definition.json", strings.NewReader(grammarDefinitionSchema)); err != nil {
		return nil, fmt.Errorf("build: compiling grammar-definition schema: %w", err)
	}
	schema, err := compiler.Compile("grammar-definition.json")
	if err != nil {
		return nil, fmt.Errorf("build: compiling grammar-definition schema: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("build: parsing grammar definition JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("build: grammar definition JSON failed schema validation: %w", err)
	}

	var jd jsonGrammarDefinition
	if err := json.Unmarshal(data, &jd); err != nil {
		return nil, fmt.Errorf("build: decoding grammar definition JSON: %w", err)
	}

	def := &GrammarDefinition{
		Options: GlobalOptions{
			GrammarName:            jd.Options.GrammarName,
			CaseSensitive:          jd.Options.CaseSensitive,
			AutoWhitespace:         jd.Options.AutoWhitespace,
			CanResolveReduceReduce: jd.Options.CanResolveReduceReduce,
			Comments: CommentOptions{
				Line:       jd.Options.Comments.Line,
				BlockStart: jd.Options.Comments.BlockStart,
				BlockEnd:   jd.Options.Comments.BlockEnd,
			},
		},
		Renames: jd.Renames,
	}

	for _, g := range jd.Options.OperatorScope {
		assoc, err := associativityFromJSON(g.Type)
		if err != nil {
			return nil, err
		}
		def.Options.OperatorScope = append(def.Options.OperatorScope, PrecedenceGroup{Type: assoc, Symbols: g.Symbols})
	}
	for _, t := range jd.Terminals {
		def.Terminals = append(def.Terminals, TerminalDef{Name: t.Name, Pattern: t.Pattern, Hidden: t.Hidden, SpecialName: t.SpecialName})
	}
	for _, nt := range jd.Nonterminals {
		def.Nonterminals = append(def.Nonterminals, NonterminalDef{Name: nt.Name, SpecialName: nt.SpecialName})
	}
	for _, p := range jd.Productions {
		pd := ProductionDef{Head: p.Head, Precedence: p.Precedence}
		for _, m := range p.Members {
			kind, err := memberKindFromJSON(m.Kind)
			if err != nil {
				return nil, err
			}
			pd.Members = append(pd.Members, Member{Kind: kind, Name: m.Name})
		}
		def.Productions = append(def.Productions, pd)
	}
	for _, gd := range jd.Groups {
		def.Groups = append(def.Groups, GroupDef{
			Name:               gd.Name,
			StartLiteral:       gd.StartLiteral,
			EndLiteral:         gd.EndLiteral,
			AdvanceByCharacter: gd.AdvanceByCharacter,
			EndsOnEndOfInput:   gd.EndsOnEndOfInput,
			KeepEndToken:       gd.KeepEndToken,
			Nesting:            gd.Nesting,
		})
	}
	for _, n := range jd.Noise {
		def.Noise = append(def.Noise, NoiseDef{Name: n.Name, Pattern: n.Pattern})
	}

	return def, nil
}
