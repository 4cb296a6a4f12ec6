package model

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Payload é o conteúdo opaco de uma entidade, no formato de documento JSON.
// Nunca deve ser mutado depois de publicado: use With/Clone para derivar novos valores.
type Payload map[string]any

// Clone devolve uma cópia profunda, sem compartilhar subestruturas mutáveis
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []int64:
		return append([]int64(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i := range t {
			out[i] = map[string]any(Payload(t[i]).Clone())
		}
		return out
	case []Payload:
		out := make([]Payload, len(t))
		for i := range t {
			out[i] = t[i].Clone()
		}
		return out
	default:
		// escalares e decimal.Decimal são valores imutáveis
		return v
	}
}

// With devolve uma cópia do payload com a chave alterada
func (p Payload) With(key string, v any) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	out[key] = cloneValue(v)
	return out
}

// Int lê um campo numérico, aceitando os formatos que chegam do JSON remoto
func (p Payload) Int(key string) int64 {
	n, _ := toInt(p[key])
	return n
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		if t > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case decimal.Decimal:
		return t.IntPart(), true
	}
	return 0, false
}

// String lê um campo textual
func (p Payload) String(key string) string {
	switch t := p[key].(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Bool lê um campo booleano
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Decimal lê um valor de token (armazenado como string para não perder precisão)
func (p Payload) Decimal(key string) decimal.Decimal {
	switch t := p[key].(type) {
	case decimal.Decimal:
		return t
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(t)
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		if n, ok := toInt(t); ok {
			return decimal.NewFromInt(n)
		}
	}
	return decimal.Zero
}

// Strings lê uma lista de strings, aceitando []any vindo do decode
func (p Payload) Strings(key string) []string {
	switch t := p[key].(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			} else if v != nil {
				out = append(out, fmt.Sprint(v))
			}
		}
		return out
	}
	return nil
}

// Maps lê uma lista de objetos (ex.: prêmios de um torneio)
func (p Payload) Maps(key string) []Payload {
	switch t := p[key].(type) {
	case []map[string]any:
		out := make([]Payload, len(t))
		for i := range t {
			out[i] = Payload(t[i]).Clone()
		}
		return out
	case []Payload:
		out := make([]Payload, len(t))
		for i := range t {
			out[i] = t[i].Clone()
		}
		return out
	case []any:
		out := make([]Payload, 0, len(t))
		for _, v := range t {
			switch m := v.(type) {
			case map[string]any:
				out = append(out, Payload(m).Clone())
			case Payload:
				out = append(out, m.Clone())
			}
		}
		return out
	}
	return nil
}

// Equal compara dois payloads pelo seu JSON canônico (chaves ordenadas pelo encoder)
func Equal(a, b Payload) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Normalize faz o round-trip JSON do payload, deixando-o no mesmo formato de uma leitura remota
func Normalize(p Payload) (Payload, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out Payload
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return out, nil
}
