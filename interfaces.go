package resilientclient

import (
	"bytes"
	"io"
	"net/http"
)

// Transport performs a single network exchange. Implementations must not
// retry, refresh tokens, or enforce timeouts; all of that is owned by the
// executor, which races Exchange against its own timer and abandons the
// loser.
type Transport interface {
	Exchange(req *WireRequest) (*WireResponse, error)
}

// HTTPTransport is the default Transport over net/http.
//
// The wrapped client deliberately carries no Timeout: the executor bounds
// every exchange itself, and an abandoned exchange is simply never observed.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{}}
}

func (t *HTTPTransport) Exchange(req *WireRequest) (*WireResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &WireResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
	}, nil
}
