package telegramrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mblazhko/library-service/util/httpx"
)

const defaultBaseURL = "https://api.telegram.org"

type httpNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

func NewHTTP(token, chatID string) Notifier {
	return &httpNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		client:  httpx.Client(),
	}
}

func (n *httpNotifier) Send(ctx context.Context, text string) error {
	body := map[string]any{
		"chat_id": n.chatID,
		"text":    text,
	}
	b, _ := json.Marshal(body)

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage failed: %s", resp.Status)
	}

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram sendMessage rejected: %s", out.Description)
	}
	return nil
}
