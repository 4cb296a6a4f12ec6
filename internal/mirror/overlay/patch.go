package overlay

import (
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

// Policy define como um patch confirmado pela submissão vira estado confirmado
type Policy int

const (
	// PolicyStrict mantém o patch no overlay até o Reconciler observar o eco remoto
	PolicyStrict Policy = iota
	// PolicyEager dobra o patch no Store assim que a submissão é confirmada
	PolicyEager
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyEager:
		return "eager"
	default:
		return "unknown"
	}
}

// Patch é uma transformação pura do payload atual para o próximo.
// Apply recebe uma cópia (nil quando a entidade ainda não existe) e devolve um valor novo.
// Superseded diz se o payload remoto já reflete o efeito pretendido.
// Observed faz o mesmo para efeitos incrementais (contadores, saldos): recebe a view
// imediatamente anterior à mutação no fold atual, avaliada sob o lock do overlay,
// e o payload remoto. Sem nenhum dos dois vale "o primeiro eco remoto mais novo
// depois do commit".
type Patch struct {
	Kind       string
	Policy     Policy
	Apply      func(prev model.Payload) model.Payload
	Superseded func(remote model.Payload) bool
	Observed   func(before, remote model.Payload) bool
}

// Mutation associa um patch à entidade alvo
type Mutation struct {
	Entity model.ID
	Patch  Patch
}

// Handle identifica o que foi registrado por um Apply
type Handle struct {
	Tx       model.TxID
	Entities []model.ID
}
