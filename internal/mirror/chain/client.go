// Package chain é o colaborador de submissão: entrega as calls ao relayer que
// assina e executa em nome da conta da sessão.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/chain/dto"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

type Client struct {
	BaseURL string
	Account string
	HTTP    *http.Client
	now     func() time.Time
}

// New cria o cliente. O timeout cobre a espera pela inclusão no bloco.
func New(base, account string) *Client {
	return &Client{
		BaseURL: base,
		Account: account,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// Submit envia as calls em uma única transação. Erros de transporte e respostas não-2xx
// viram erro; uma transação incluída mas revertida volta como Receipt REVERTED.
func (c *Client) Submit(ctx context.Context, calls []model.Call) (model.Receipt, error) {
	body, err := json.Marshal(dto.ExecuteRequest{Account: c.Account, Calls: calls})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("marshal execute request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return model.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	submitted := c.now().UTC()
	res, err := c.HTTP.Do(req)
	if err != nil {
		return model.Receipt{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return model.Receipt{}, fmt.Errorf("relayer execute http %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}

	var out dto.ExecuteResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return model.Receipt{}, fmt.Errorf("decode execute response: %w", err)
	}
	return model.Receipt{
		TxHash:      out.TxHash,
		Status:      model.ReceiptStatus(out.Status),
		Reason:      out.Reason,
		SubmittedAt: submitted,
	}, nil
}
