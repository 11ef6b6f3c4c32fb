package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/service"
)

type payload struct {
	RecipientID    int64  `json:"recipientId"`
	SenderLabel    string `json:"senderLabel"`
	MessagePreview string `json:"messagePreview"`
	ConversationID string `json:"conversationId"`
	LocationID     int64  `json:"locationId,omitempty"`
}

// HTTPDispatcher posts new-message notifications to the route of the
// recipient's role. It makes exactly one attempt per call.
type HTTPDispatcher struct {
	chefURL    string
	managerURL string
	client     *http.Client
}

func NewHTTPDispatcher(chefURL, managerURL string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		chefURL:    chefURL,
		managerURL: managerURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (d *HTTPDispatcher) Notify(ctx context.Context, n service.Notification) error {
	url, err := d.route(n.RecipientRole)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload{
		RecipientID:    n.RecipientID,
		SenderLabel:    n.SenderLabel,
		MessagePreview: n.Preview,
		ConversationID: n.ConversationID,
		LocationID:     n.LocationID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := service.IdentityFromContext(ctx); ok {
		if token, err := id.Credential(ctx, false); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDispatcher) route(role entity.Role) (string, error) {
	switch role {
	case entity.RoleChef:
		return d.chefURL, nil
	case entity.RoleManager:
		return d.managerURL, nil
	}
	return "", fmt.Errorf("no notification route for role %q", role)
}
