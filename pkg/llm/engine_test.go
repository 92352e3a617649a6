package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"toolbridge/pkg/action"
	"toolbridge/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu    sync.Mutex
	key   string
	calls [][]Message
	reply string
	err   error
}

func (c *fakeClient) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, messages)
	return c.reply, c.err
}

func (c *fakeClient) last() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeClient
	keyEnv  []string
	reply   string
	err     error
}

func (f *fakeFactory) Create(cfg ProviderConfig, sys *config.SystemConfig) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeClient{key: cfg.APIKey, reply: f.reply, err: f.err}
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeFactory) KeyEnv() []string    { return f.keyEnv }
func (f *fakeFactory) DefaultModel() string { return "fake-model" }

func (f *fakeFactory) latest() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

func register(t *testing.T, name string, f *fakeFactory) {
	t.Helper()
	RegisterProvider(name, f)
	t.Cleanup(func() { delete(providerRegistry, name) })
}

func engineRequest(provider string) Request {
	return Request{
		Tool:         "brain",
		Config:       config.ToolConfig{Type: config.KindInternal, Provider: provider},
		Context:      "main menu",
		SystemPrompt: "You are a tester.",
	}
}

func TestGenerate_SystemAndUser(t *testing.T) {
	f := &fakeFactory{reply: `{"action":"Wait"}`}
	register(t, "fake-gen", f)
	e := NewEngine(nil)

	out, err := e.Generate(context.Background(), engineRequest("fake-gen"))
	require.NoError(t, err)
	assert.Equal(t, `{"action":"Wait"}`, out)

	msgs := f.latest().last()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are a tester.", msgs[0].GetTextContent())
	assert.Equal(t, UserPrompt("main menu"), msgs[1].GetTextContent())
	assert.False(t, msgs[1].HasImages())
}

func TestGenerate_AttachesExistingImage(t *testing.T) {
	f := &fakeFactory{reply: "{}"}
	register(t, "fake-img", f)
	e := NewEngine(nil)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, os.WriteFile(path, png, 0644))

	req := engineRequest("fake-img")
	req.ImagePath = path
	_, err := e.Generate(context.Background(), req)
	require.NoError(t, err)

	user := f.latest().last()[1]
	require.True(t, user.HasImages())
	assert.Equal(t, "image/png", user.Content[1].Source.MediaType)

	req.ImagePath = filepath.Join(t.TempDir(), "missing.png")
	_, err = e.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, f.latest().last()[1].HasImages(), "missing file degrades to text")
}

func TestChat_FirstTurnCarriesSystemPrompt(t *testing.T) {
	f := &fakeFactory{reply: `{"thought":"ok"}`}
	register(t, "fake-chat", f)
	e := NewEngine(nil)
	req := engineRequest("fake-chat")
	req.Config.Chat = true

	_, err := e.Invoke(context.Background(), req)
	require.NoError(t, err)
	first := f.latest().last()
	require.Len(t, first, 1)
	assert.Equal(t, "You are a tester.\n\n"+UserPrompt("main menu"), first[0].GetTextContent())

	req.Context = "in game"
	_, err = e.Invoke(context.Background(), req)
	require.NoError(t, err)
	second := f.latest().last()
	require.Len(t, second, 3)
	assert.Equal(t, RoleAssistant, second[1].Role)
	assert.Equal(t, UserPrompt("in game"), second[2].GetTextContent())

	e.Reset()
	assert.Equal(t, 0, e.Conversations().Len())
	_, err = e.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, f.latest().last(), 1, "reset starts a fresh conversation")
}

func TestChat_HistoryDropsImages(t *testing.T) {
	f := &fakeFactory{reply: "{}"}
	register(t, "fake-hist", f)
	e := NewEngine(nil)

	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n0000"), 0644))
	req := engineRequest("fake-hist")
	req.Config.Chat = true
	req.ImagePath = path

	_, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	_, err = e.Chat(context.Background(), req)
	require.NoError(t, err)

	msgs := f.latest().last()
	require.Len(t, msgs, 3)
	assert.False(t, msgs[0].HasImages())
	assert.True(t, msgs[2].HasImages())
}

func TestClientCache_RebuiltOnKeyChange(t *testing.T) {
	f := &fakeFactory{reply: "{}"}
	register(t, "fake-cache", f)
	e := NewEngine(nil)
	req := engineRequest("fake-cache")

	_, _ = e.Generate(context.Background(), req)
	_, _ = e.Generate(context.Background(), req)
	assert.Len(t, f.created, 1)

	req.APIKey = "override"
	_, _ = e.Generate(context.Background(), req)
	require.Len(t, f.created, 2)
	assert.Equal(t, "override", f.latest().key)
}

func TestResolveKey_Precedence(t *testing.T) {
	f := &fakeFactory{keyEnv: []string{"TOOLBRIDGE_TEST_KEY"}}
	t.Setenv("TOOLBRIDGE_TEST_KEY", "from-env")
	req := engineRequest("x")

	assert.Equal(t, "from-env", ResolveKey(f, req))
	req.Config.APIKey = "from-tool"
	assert.Equal(t, "from-tool", ResolveKey(f, req))
	req.APIKey = "from-request"
	assert.Equal(t, "from-request", ResolveKey(f, req))
}

func TestGenerate_MissingKey(t *testing.T) {
	f := &fakeFactory{keyEnv: []string{"TOOLBRIDGE_UNSET_KEY"}}
	register(t, "fake-key", f)
	t.Setenv("TOOLBRIDGE_UNSET_KEY", "")
	e := NewEngine(nil)

	_, err := e.Generate(context.Background(), engineRequest("fake-key"))
	require.Error(t, err)
	assert.Equal(t, action.UpstreamEngineFailure, action.KindOf(err))
	assert.Contains(t, err.Error(), "TOOLBRIDGE_UNSET_KEY")
	assert.Empty(t, f.created)
}

func TestGenerate_ProviderErrors(t *testing.T) {
	f := &fakeFactory{err: errors.New("503 overloaded")}
	register(t, "fake-err", f)
	e := NewEngine(nil)

	_, err := e.Generate(context.Background(), engineRequest("fake-err"))
	require.Error(t, err)
	assert.Equal(t, action.UpstreamEngineFailure, action.KindOf(err))
	assert.Contains(t, err.Error(), "503 overloaded")

	_, err = e.Generate(context.Background(), engineRequest("no-such-provider"))
	assert.Equal(t, action.UpstreamEngineFailure, action.KindOf(err))
}

func TestChatHistory_Limit(t *testing.T) {
	h := NewChatHistory(2)
	h.Add(NewTextMessage(RoleUser, "a"), NewTextMessage(RoleAssistant, "b"), NewTextMessage(RoleUser, "c"))
	msgs := h.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].GetTextContent())
}
