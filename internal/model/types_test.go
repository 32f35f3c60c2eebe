package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSubscribesTo(t *testing.T) {
	direct := Endpoint{Events: []string{"cert.created", "cert.revoked"}}
	if !direct.SubscribesTo("cert.created") {
		t.Fatal("direct subscription missed")
	}
	if direct.SubscribesTo("scan.finished") {
		t.Fatal("unrelated type matched")
	}
	wild := Endpoint{Events: []string{WildcardEvent}}
	if !wild.SubscribesTo("anything.at.all") {
		t.Fatal("wildcard should match everything")
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[EventStatus]bool{
		StatusPending:   false,
		StatusRetrying:  false,
		StatusDelivered: true,
		StatusFailed:    true,
		StatusExpired:   true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestEndpointSecretNeverMarshals(t *testing.T) {
	b, err := json.Marshal(Endpoint{ID: "e1", URL: "https://a", Secret: "hunter2"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "hunter2") {
		t.Fatalf("secret leaked: %s", b)
	}
}
