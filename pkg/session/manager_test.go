package session

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"toolbridge/pkg/action"
	"toolbridge/pkg/config"
	"toolbridge/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It plays a persistent tool that reads
// one request per line on stdin.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	mode := args[1]
	if mode == "deaf" {
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}

	in := bufio.NewReader(os.Stdin)
	for {
		line, err := in.ReadString('\n')
		if err != nil {
			os.Exit(0)
		}
		line = strings.TrimRight(line, "\r\n")
		fmt.Fprintf(os.Stderr, "DEBUG: Received %d chars\n", len(line))

		switch mode {
		case "echo":
			reply(line, line)
		case "pty":
			// The terminal delivers "@<prompt file>".
			data, err := os.ReadFile(strings.TrimPrefix(strings.TrimSpace(line), "@"))
			if err != nil {
				fmt.Printf("cannot read prompt: %v\n", err)
				continue
			}
			reply(string(data), strings.ReplaceAll(string(data), "\n", " "))
		case "chunked":
			fmt.Print("\x1b[33mthinking...\x1b[0m\n{\"thought\":")
			os.Stdout.Sync()
			time.Sleep(100 * time.Millisecond)
			fmt.Print("\"split\",\"action\":\"drag\"}\n")
		case "nested":
			fmt.Print("{\"thought\":\"press start\",\"screenPosition\":{\"x\":0.5,\"y\":0.7}")
			os.Stdout.Sync()
			time.Sleep(300 * time.Millisecond)
			fmt.Print(",\"actionType\":\"Click\"}\n")
		case "silent":
		case "die":
			fmt.Fprintln(os.Stderr, "fatal: model crashed")
			os.Exit(1)
		}
	}
}

func reply(prompt, flat string) {
	primed := "plain"
	if strings.Contains(prompt, "SYSTEM: ") {
		primed = "primed"
	}
	ctx := flat
	if i := strings.Index(flat, "CONTEXT: "); i >= 0 {
		ctx = flat[i+len("CONTEXT: "):]
		ctx = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(ctx), jsonInstruction))
	}
	fmt.Printf("{\"thought\":%q,\"actionType\":\"Wait\",\"textToType\":%q}\n", primed, ctx)
}

func helperTool(mode string) config.ToolConfig {
	return config.ToolConfig{
		Command:    os.Args[0],
		Arguments:  []string{"-test.run=TestHelperProcess", "--", mode},
		Persistent: true,
		Env:        map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
	}
}

func testManager(deadline time.Duration) *Manager {
	return NewManager(Options{
		Deadline:     deadline,
		PollInterval: 50 * time.Millisecond,
		Buffer:       64,
		PromptDir:    os.TempDir(),
	})
}

func request(tool string, cfg config.ToolConfig, context string) Request {
	return Request{
		Tool:         tool,
		Config:       cfg,
		ImagePath:    "/tmp/frame.png",
		Context:      context,
		SystemPrompt: "You are a tester.\nRespond in JSON.",
	}
}

func TestPipeLine(t *testing.T) {
	req := request("t", config.ToolConfig{}, "line one\nline two")
	primed := PipeLine(req, true)
	assert.Equal(t, "SYSTEM: You are a tester. Respond in JSON. IMAGE: @/tmp/frame.png CONTEXT: line one line two Respond with a single JSON object only.\n", primed)
	assert.Equal(t, 1, strings.Count(primed, "\n"))

	plain := PipeLine(req, false)
	assert.NotContains(t, plain, "SYSTEM:")
	assert.True(t, strings.HasPrefix(plain, "IMAGE: @/tmp/frame.png"))
}

func TestPromptText(t *testing.T) {
	req := request("t", config.ToolConfig{}, "menu")
	assert.Contains(t, PromptText(req, true), "SYSTEM: You are a tester.\nRespond in JSON.\n\n")
	assert.NotContains(t, PromptText(req, false), "SYSTEM:")
}

func TestSend_SinglePrime(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()
	cfg := helperTool("echo")

	first, err := m.Send(context.Background(), request("echo", cfg, "first"))
	require.NoError(t, err)
	assert.Equal(t, "primed", first["thought"])
	assert.Equal(t, "first", first["textToType"])

	second, err := m.Send(context.Background(), request("echo", cfg, "second"))
	require.NoError(t, err)
	assert.Equal(t, "plain", second["thought"])
	assert.Equal(t, "second", second["textToType"])

	assert.Equal(t, []string{"echo"}, m.Active())
}

func TestSend_ResetReprimes(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()
	cfg := helperTool("echo")

	_, err := m.Send(context.Background(), request("echo", cfg, "a"))
	require.NoError(t, err)

	m.Reset()
	assert.Empty(t, m.Active())

	again, err := m.Send(context.Background(), request("echo", cfg, "b"))
	require.NoError(t, err)
	assert.Equal(t, "primed", again["thought"])
}

func TestSend_ConfigChangeRestarts(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()
	cfg := helperTool("echo")

	_, err := m.Send(context.Background(), request("echo", cfg, "a"))
	require.NoError(t, err)

	cfg.Env["EXTRA"] = "1"
	out, err := m.Send(context.Background(), request("echo", cfg, "b"))
	require.NoError(t, err)
	assert.Equal(t, "primed", out["thought"])
}

func TestSend_StreamedChunks(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()

	out, err := m.Send(context.Background(), request("chunked", helperTool("chunked"), "x"))
	require.NoError(t, err)
	assert.Equal(t, "split", out["thought"])
	assert.Equal(t, "drag", out["action"])
}

func TestSend_TimeoutBound(t *testing.T) {
	deadline := 500 * time.Millisecond
	m := testManager(deadline)
	defer m.Close()

	start := time.Now()
	_, err := m.Send(context.Background(), request("silent", helperTool("silent"), "x"))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, action.ProcessTimeout, action.KindOf(err))
	// Spawn time is included, so allow slack on top of deadline + poll.
	assert.Less(t, elapsed, deadline+50*time.Millisecond+3*time.Second)
	assert.Equal(t, []string{"silent"}, m.Active(), "a timed out session keeps running")
}

func TestSend_PartialObjectWaitsForWhole(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()

	out, err := m.Send(context.Background(), request("nested", helperTool("nested"), "x"))
	require.NoError(t, err)
	assert.Equal(t, "Click", out["actionType"])
	assert.Equal(t, "press start", out["thought"])
}

func TestSend_UnreadInputBoundedByDeadline(t *testing.T) {
	deadline := 500 * time.Millisecond
	m := testManager(deadline)
	defer m.Close()

	start := time.Now()
	_, err := m.Send(context.Background(), request("deaf", helperTool("deaf"), strings.Repeat("x", 1<<20)))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, action.ProcessTimeout, action.KindOf(err))
	assert.Less(t, elapsed, deadline+3*time.Second)
	assert.Empty(t, m.Active(), "a session that stopped reading is dropped")
}

func TestSend_DeadlineCoversQueueWait(t *testing.T) {
	deadline := time.Second
	m := testManager(deadline)
	defer m.Close()
	cfg := helperTool("silent")

	const n = 3
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			_, errs[i] = m.Send(context.Background(), request("silent", cfg, fmt.Sprintf("ctx-%d", i)))
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, action.ProcessTimeout, action.KindOf(errs[i]))
		assert.Less(t, elapsed[i], 2*deadline, "request %d", i)
	}
}

func TestEnsure_ResetDuringSpawn(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()

	s := m.slot("late")
	m.Reset()
	active := testutil.ToFloat64(metrics.SessionsActive)

	p, err := m.ensure(context.Background(), s, request("late", helperTool("echo"), "x"))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Equal(t, action.ProcessDiedMidRequest, action.KindOf(err))
	assert.Nil(t, s.current())
	assert.Empty(t, m.Active())
	assert.Equal(t, active, testutil.ToFloat64(metrics.SessionsActive))
}

func TestSend_DiedMidRequest(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()

	_, err := m.Send(context.Background(), request("die", helperTool("die"), "x"))
	require.Error(t, err)
	assert.Equal(t, action.ProcessDiedMidRequest, action.KindOf(err))
	assert.Contains(t, err.Error(), "fatal: model crashed")
	assert.Empty(t, m.Active())

	_, err = m.Send(context.Background(), request("die", helperTool("die"), "y"))
	assert.Equal(t, action.ProcessDiedMidRequest, action.KindOf(err), "a fresh process is spawned")
}

func TestSend_SpawnFailure(t *testing.T) {
	m := testManager(time.Second)
	defer m.Close()

	_, err := m.Send(context.Background(), request("ghost", config.ToolConfig{Command: "/nonexistent/tool", Persistent: true}, "x"))
	require.Error(t, err)
	assert.Equal(t, action.ProcessSpawnFailure, action.KindOf(err))
}

func TestSend_SerializedPerTool(t *testing.T) {
	m := testManager(10 * time.Second)
	defer m.Close()
	cfg := helperTool("echo")

	const n = 5
	var wg sync.WaitGroup
	results := make([]map[string]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Send(context.Background(), request("echo", cfg, fmt.Sprintf("ctx-%d", i)))
		}(i)
	}
	wg.Wait()

	primed := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("ctx-%d", i), results[i]["textToType"])
		if results[i]["thought"] == "primed" {
			primed++
		}
	}
	assert.Equal(t, 1, primed)
}

func TestSend_QueueWaitHonorsContext(t *testing.T) {
	m := testManager(2 * time.Second)
	defer m.Close()
	cfg := helperTool("silent")

	go m.Send(context.Background(), request("silent", cfg, "hold"))
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := m.Send(ctx, request("silent", cfg, "queued"))
	require.Error(t, err)
	assert.Equal(t, action.ProcessTimeout, action.KindOf(err))
}

func TestSend_PTY(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty mode is unix only")
	}
	m := testManager(10 * time.Second)
	defer m.Close()
	cfg := helperTool("pty")
	cfg.Mode = config.ModePTY

	first, err := m.Send(context.Background(), request("pty", cfg, "menu"))
	require.NoError(t, err)
	assert.Equal(t, "primed", first["thought"])
	assert.Equal(t, "menu", first["textToType"])

	second, err := m.Send(context.Background(), request("pty", cfg, "game"))
	require.NoError(t, err)
	assert.Equal(t, "plain", second["thought"])
}

func TestStream_DropsOldest(t *testing.T) {
	s := newStream(2)
	s.push("a")
	s.push("b")
	s.push("c")
	assert.Equal(t, "bc", s.drain())
	assert.Equal(t, "", s.drain())
}
