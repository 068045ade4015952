package consul

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent records the agent API calls the service makes.
type fakeAgent struct {
	mu           sync.Mutex
	registered   consulapi.AgentServiceRegistration
	deregistered string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/v1/agent/service/register":
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.registered)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
		f.deregistered = strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/")
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestRegisterAndDeregister(t *testing.T) {
	agent := &fakeAgent{}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	id, err := Register(client, Registration{Name: "checkout", Host: "checkout.local", Port: 8085, Tags: []string{"payments"}})
	require.NoError(t, err)
	assert.Equal(t, "checkout-checkout.local-8085", id)

	agent.mu.Lock()
	assert.Equal(t, "checkout", agent.registered.Name)
	assert.Equal(t, 8085, agent.registered.Port)
	require.NotNil(t, agent.registered.Check)
	assert.Equal(t, "http://checkout.local:8085/ping", agent.registered.Check.HTTP)
	agent.mu.Unlock()

	require.NoError(t, Deregister(client, id))
	agent.mu.Lock()
	assert.Equal(t, id, agent.deregistered)
	agent.mu.Unlock()
}

func TestRegister_AgentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	_, err = Register(client, Registration{Name: "checkout", Host: "localhost", Port: 8085})
	assert.Error(t, err)
}
