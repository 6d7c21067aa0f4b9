package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestTicketsList_TextOutput(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets", jsonResponse(200, `{
			"tickets": [
				{"id": 1, "subject": "DNS not propagating", "status": "open", "guest_name": "Ada", "last_reply_at": 1700000000},
				{"id": 2, "subject": "Invoice question", "status": "answered", "guest_name": "Linus", "last_reply_at": 1700003600}
			]
		}`))

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(output, "DNS not propagating") {
		t.Errorf("missing first ticket subject, output: %s", output)
	}
	if !strings.Contains(output, "Invoice question") {
		t.Errorf("missing second ticket subject, output: %s", output)
	}
	if !strings.Contains(output, "Ada") {
		t.Errorf("missing guest name, output: %s", output)
	}
}

func TestTicketsList_JSONOutput(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets", jsonResponse(200, `{
			"tickets": [
				{"id": 1, "subject": "DNS not propagating", "status": "open"},
				{"id": 2, "subject": "Invoice question", "status": "answered"}
			]
		}`))

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list", "-o", "json"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	items := decodeItems(t, output)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["subject"] != "DNS not propagating" {
		t.Errorf("first item subject = %v", items[0]["subject"])
	}
}

func TestTicketsList_Empty(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets", jsonResponse(200, `{"tickets": []}`))

	setupTestEnvWithHandler(t, handler)

	output := captureStderr(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(output, "No tickets found") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestTicketsList_StatusFilter(t *testing.T) {
	var gotStatus string
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets", func(w http.ResponseWriter, r *http.Request) {
			gotStatus = r.URL.Query().Get("status")
			jsonResponse(200, `{"tickets": []}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	_ = captureStderr(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list", "--status", "open"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotStatus != "open" {
		t.Errorf("status query = %q, want %q", gotStatus, "open")
	}
}

func TestTicketsList_StatusPrefixMatch(t *testing.T) {
	var gotStatus string
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets", func(w http.ResponseWriter, r *http.Request) {
			gotStatus = r.URL.Query().Get("status")
			jsonResponse(200, `{"tickets": []}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	_ = captureStderr(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list", "--status", "aw"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotStatus != "awaiting_reply" {
		t.Errorf("status query = %q, want %q", gotStatus, "awaiting_reply")
	}
}

func TestTicketsList_InvalidStatus(t *testing.T) {
	setupTestEnvWithHandler(t, newRouteHandler())

	_ = captureStderr(t, func() {
		err := Execute(context.Background(), []string{"tickets", "list", "--status", "bogus"})
		if err == nil {
			t.Fatal("expected error for invalid status")
		}
	})
}

func TestTicketsList_DepartmentByName(t *testing.T) {
	var gotDepartment string
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/departments", jsonResponse(200, `{
			"departments": [
				{"id": 7, "name": "Billing"},
				{"id": 8, "name": "Technical Support"}
			]
		}`)).
		On("GET", "/api/v1/accounts/1/tickets", func(w http.ResponseWriter, r *http.Request) {
			gotDepartment = r.URL.Query().Get("department_id")
			jsonResponse(200, `{"tickets": []}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	_ = captureStderr(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "list", "--department", "billing"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotDepartment != "7" {
		t.Errorf("department_id query = %q, want %q", gotDepartment, "7")
	}
}

func TestTicketsShow_PrintsThread(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets/42", jsonResponse(200, `{
			"id": 42, "subject": "Server down", "status": "open", "guest_name": "Ada",
			"replies": [
				{"id": 1, "ticket_id": 42, "body": "My server is down", "author_type": "guest", "author_name": "Ada", "created_at": 1700000000},
				{"id": 2, "ticket_id": 42, "body": "Looking into it", "author_type": "operator", "author_name": "Dana", "created_at": 1700000100},
				{"id": 3, "ticket_id": 42, "body": "Disk is full", "author_type": "operator", "author_name": "Dana", "internal": true, "created_at": 1700000200}
			]
		}`))

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "show", "42"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(output, "Ticket #42: Server down") {
		t.Errorf("missing header, output: %s", output)
	}
	if !strings.Contains(output, "My server is down") {
		t.Errorf("missing guest reply, output: %s", output)
	}
	if !strings.Contains(output, "[internal]") {
		t.Errorf("internal note should be marked, output: %s", output)
	}
}

func TestTicketsShow_AcceptsHashPrefix(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets/42", jsonResponse(200, `{"id": 42, "subject": "Server down", "status": "open"}`))

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "show", "#42"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(output, "Ticket #42") {
		t.Errorf("missing header, output: %s", output)
	}
}

func TestTicketsShow_NotFound(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/tickets/999", jsonResponse(404, `{"error": "Not found"}`))

	setupTestEnvWithHandler(t, handler)

	_ = captureStderr(t, func() {
		err := Execute(context.Background(), []string{"tickets", "show", "999"})
		if err == nil {
			t.Fatal("expected error for missing ticket")
		}
		if code := ExitCode(err); code != exitNotFound {
			t.Errorf("exit code = %d, want %d", code, exitNotFound)
		}
	})
}

func TestTicketsReply_PostsBody(t *testing.T) {
	var gotBody map[string]any
	handler := newRouteHandler().
		On("POST", "/api/v1/accounts/1/tickets/42/replies", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			jsonResponse(200, `{"id": 9, "ticket_id": 42, "body": "On it", "author_type": "operator"}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "reply", "42", "-m", "On it"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotBody["body"] != "On it" {
		t.Errorf("posted body = %v, want %q", gotBody["body"], "On it")
	}
	if _, ok := gotBody["internal"]; ok {
		t.Error("internal should be omitted for a plain reply")
	}
	if !strings.Contains(output, "Reply #9 posted on ticket #42") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTicketsReply_InternalNote(t *testing.T) {
	var gotBody map[string]any
	handler := newRouteHandler().
		On("POST", "/api/v1/accounts/1/tickets/42/replies", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			jsonResponse(200, `{"id": 10, "ticket_id": 42, "body": "Disk is full", "author_type": "operator", "internal": true}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "reply", "42", "-m", "Disk is full", "--internal"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotBody["internal"] != true {
		t.Errorf("internal = %v, want true", gotBody["internal"])
	}
	if !strings.Contains(output, "Internal note") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTicketsClose(t *testing.T) {
	var gotBody map[string]string
	handler := newRouteHandler().
		On("POST", "/api/v1/accounts/1/tickets/42/status", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			jsonResponse(200, `{"id": 42, "subject": "Server down", "status": "closed"}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "close", "42"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotBody["status"] != "closed" {
		t.Errorf("status body = %q, want %q", gotBody["status"], "closed")
	}
	if !strings.Contains(output, "Closed ticket #42") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTicketsAssign_ByOperatorName(t *testing.T) {
	var gotBody map[string]int
	handler := newRouteHandler().
		On("GET", "/api/v1/accounts/1/operators", jsonResponse(200, `{
			"operators": [
				{"id": 3, "name": "Dana Ops", "email": "dana@example.com"},
				{"id": 4, "name": "Sam Support", "email": "sam@example.com"}
			]
		}`)).
		On("POST", "/api/v1/accounts/1/tickets/42/assignee", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			jsonResponse(200, `{}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		if err := Execute(context.Background(), []string{"tickets", "assign", "42", "dana"}); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotBody["operator_id"] != 3 {
		t.Errorf("operator_id = %d, want 3", gotBody["operator_id"])
	}
	if !strings.Contains(output, "Assigned ticket #42 to operator 3") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestTicketsCreate(t *testing.T) {
	var gotBody map[string]any
	handler := newRouteHandler().
		On("POST", "/api/v1/accounts/1/tickets", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			jsonResponse(201, `{"id": 50, "subject": "Migration help", "status": "open"}`)(w, r)
		})

	setupTestEnvWithHandler(t, handler)

	output := captureStdout(t, func() {
		err := Execute(context.Background(), []string{
			"tickets", "create",
			"--subject", "Migration help",
			"-m", "Please move my site",
			"--guest-id", "12",
			"--department", "7",
			"--priority", "high",
		})
		if err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if gotBody["subject"] != "Migration help" {
		t.Errorf("subject = %v", gotBody["subject"])
	}
	if gotBody["guest_id"] != float64(12) {
		t.Errorf("guest_id = %v, want 12", gotBody["guest_id"])
	}
	if gotBody["department_id"] != float64(7) {
		t.Errorf("department_id = %v, want 7", gotBody["department_id"])
	}
	if gotBody["priority"] != "high" {
		t.Errorf("priority = %v, want high", gotBody["priority"])
	}
	if !strings.Contains(output, "Created ticket #50") {
		t.Errorf("unexpected output: %s", output)
	}
}
