package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce/mockapi"
	"github.com/danmuck/storefront/internal/store"
	"github.com/danmuck/storefront/internal/testutil/testlog"
)

func setup(t *testing.T) (*mockapi.Server, string, string) {
	t.Helper()
	remote := mockapi.New("demo-client", mockapi.DemoCatalog())
	srv := httptest.NewServer(remote.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[commerce]\nbase_url = %q\nclient_id = \"demo-client\"\ncall_timeout = \"2s\"\n", srv.URL)
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return remote, cfgPath, filepath.Join(dir, "state.toml")
}

func TestWalkPaysOrder(t *testing.T) {
	testlog.Start(t)
	remote, cfgPath, statePath := setup(t)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-config", cfgPath, "-state", statePath, "walk"}, &out); err != nil {
		t.Fatalf("walk: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "paid") {
		t.Fatalf("walk output missing paid:\n%s", out.String())
	}
	if n := remote.Calls(mockapi.OpBeginCheckout); n != 1 {
		t.Fatalf("begin checkout calls = %d", n)
	}

	kv, err := store.OpenFile(statePath)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	if id, ok, _ := kv.Get(cart.DefaultStorageKey); !ok || id == "" {
		t.Fatalf("cart id not persisted")
	}
}

func TestCartPersistsAcrossRuns(t *testing.T) {
	testlog.Start(t)
	remote, cfgPath, statePath := setup(t)
	base := []string{"-config", cfgPath, "-state", statePath}

	var out bytes.Buffer
	if err := run(context.Background(), append(base, "add", "P2", "3"), &out); err != nil {
		t.Fatalf("add: %v", err)
	}
	out.Reset()
	if err := run(context.Background(), append(base, "cart"), &out); err != nil {
		t.Fatalf("cart: %v", err)
	}
	if !strings.Contains(out.String(), "Store Tee") || !strings.Contains(out.String(), "(ready)") {
		t.Fatalf("cart output:\n%s", out.String())
	}
	if n := remote.Calls(mockapi.OpCreateCart); n != 1 {
		t.Fatalf("create cart calls = %d, want 1", n)
	}
}

func TestPaymentRetryUsesSameOrder(t *testing.T) {
	testlog.Start(t)
	remote, cfgPath, statePath := setup(t)
	base := []string{"-config", cfgPath, "-state", statePath}

	if err := run(context.Background(), append(base, "add", "P1"), &bytes.Buffer{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	remote.FailNext(mockapi.OpSubmitPayment, 503)
	var out bytes.Buffer
	if err := run(context.Background(), append(base, "checkout", "-retries", "1"), &out); err != nil {
		t.Fatalf("checkout: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "retrying order") {
		t.Fatalf("expected retry in output:\n%s", out.String())
	}
	if n := remote.Calls(mockapi.OpBeginCheckout); n != 1 {
		t.Fatalf("begin checkout calls = %d", n)
	}
	if n := remote.Calls(mockapi.OpSubmitPayment); n != 2 {
		t.Fatalf("payment calls = %d", n)
	}
}

func TestUsageErrors(t *testing.T) {
	testlog.Start(t)
	_, cfgPath, statePath := setup(t)
	cases := [][]string{
		{},
		{"-config", cfgPath, "-state", statePath, "explode"},
		{"-config", cfgPath, "-state", statePath, "remove"},
		{"-config", cfgPath, "-state", statePath, "add", "P1", "many"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Fatalf("run(%v) err = %v", args, err)
		}
	}
}
