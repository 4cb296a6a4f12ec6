// Package tournament descreve o domínio de torneios espelhado pelo cliente:
// tipos, ids de entidade, calls de contrato e os patches otimistas de cada ação.
package tournament

import (
	"github.com/shopspring/decimal"
)

// Option é um valor opcional explícito (entry fee, prova de qualificação...)
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] { return Option[T]{value: v, ok: true} }

func None[T any]() Option[T] { return Option[T]{} }

func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

func (o Option[T]) IsSome() bool { return o.ok }

// TokenType é fungível (ERC20) ou não fungível (ERC721). Só as variantes deste pacote o implementam.
type TokenType interface {
	Variant() string
	isTokenType()
}

type ERC20 struct {
	Amount decimal.Decimal
}

type ERC721 struct {
	TokenID string
}

func (ERC20) Variant() string  { return "erc20" }
func (ERC721) Variant() string { return "erc721" }
func (ERC20) isTokenType()     {}
func (ERC721) isTokenType()    {}

// ApproveValue é o argumento de valor do approve: o montante (ERC20) ou o token id (ERC721)
func ApproveValue(t TokenType) string {
	switch v := t.(type) {
	case ERC20:
		return v.Amount.String()
	case ERC721:
		return v.TokenID
	default:
		panic("tournament: unknown token type")
	}
}

type EntryFee struct {
	TokenAddress string          `json:"token_address"`
	Amount       decimal.Decimal `json:"amount"`
}

type QualificationProof struct {
	Kind string   `json:"kind"`
	Data []string `json:"data"`
}

type Schedule struct {
	Start         int64 `json:"start"`
	End           int64 `json:"end"`
	SubmissionEnd int64 `json:"submission_end"`
}

type Tournament struct {
	ID          string
	Name        string
	Description string
	Creator     string
	GameAddress string
	Schedule    Schedule
	EntryFee    Option[EntryFee]
}

type Prize struct {
	TournamentID   string
	TokenAddress   string
	Token          TokenType
	PayoutPosition int
}

// Token é um par (endereço, tipo) usado nos approves em lote
type Token struct {
	Address string
	Type    TokenType
}
