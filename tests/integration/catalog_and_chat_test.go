package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campuslabs/campus/backend/internal/auth"
	"github.com/campuslabs/campus/backend/internal/catalog"
	"github.com/campuslabs/campus/backend/internal/chat"
	"github.com/campuslabs/campus/backend/internal/database"
	"github.com/campuslabs/campus/backend/internal/server"
	"github.com/campuslabs/campus/backend/internal/students"
	"github.com/campuslabs/campus/backend/internal/users"
)

const (
	signingSecret   = "integration-secret"
	tokenIssuer     = "campus-auth"
	teacherUserID   = "teacher-abc"
	studentUserID   = "student-xyz"
	jsonContentType = "application/json"
)

// TestCatalogAndChatFlow walks the whole teaching workflow over HTTP: build a
// course, reorder its modules, enroll a student, exchange chat messages and
// read the history back.
func TestCatalogAndChatFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite("file:integration?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        tokenIssuer,
		TokenTTL:      time.Minute,
	})
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build catalog service: %v", err)
	}
	studentsService, err := students.NewService(students.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build students service: %v", err)
	}
	registry := chat.NewRegistry()
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database: db,
		Registry: registry,
	})
	if err != nil {
		testContext.Fatalf("failed to build chat service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:    tokenManager,
		CatalogService:  catalogService,
		ChatService:     chatService,
		StudentsService: studentsService,
		UsersService:    usersService,
		Registry:        registry,
		Logger:          zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}

	apiServer := httptest.NewServer(handler)
	testContext.Cleanup(apiServer.Close)

	teacherToken := mustToken(testContext, tokenManager, teacherUserID, "Ada Teacher")
	studentToken := mustToken(testContext, tokenManager, studentUserID, "Sam Student")

	// Teacher builds the course skeleton.
	subject := postJSON(testContext, apiServer.URL+"/subjects", teacherToken,
		`{"title":"Programming","slug":"programming"}`, http.StatusCreated)
	course := postJSON(testContext, apiServer.URL+"/courses", teacherToken,
		fmt.Sprintf(`{"subject_id":%v,"title":"Go 101","slug":"go-101","overview":"intro"}`, subject["id"]), http.StatusCreated)
	courseID := fmt.Sprintf("%v", course["id"])

	intro := postJSON(testContext, apiServer.URL+"/courses/"+courseID+"/modules", teacherToken,
		`{"title":"Introduction"}`, http.StatusCreated)
	syntax := postJSON(testContext, apiServer.URL+"/courses/"+courseID+"/modules", teacherToken,
		`{"title":"Syntax"}`, http.StatusCreated)
	if intro["position"] != float64(0) || syntax["position"] != float64(1) {
		testContext.Fatalf("unexpected initial positions: %v, %v", intro["position"], syntax["position"])
	}

	moduleID := fmt.Sprintf("%v", intro["id"])
	postJSON(testContext, apiServer.URL+"/modules/"+moduleID+"/contents", teacherToken,
		`{"kind":"text","title":"Welcome","text":"Hello!"}`, http.StatusCreated)

	// Drag-and-drop: swap the two modules.
	reorderBody := fmt.Sprintf(`{"%v":1,"%v":0}`, intro["id"], syntax["id"])
	reply := postJSON(testContext, apiServer.URL+"/modules/order", teacherToken, reorderBody, http.StatusOK)
	if reply["saved"] != "OK" {
		testContext.Fatalf("unexpected reorder reply: %v", reply)
	}

	listResp, err := http.Get(apiServer.URL + "/courses/" + courseID + "/modules")
	if err != nil {
		testContext.Fatalf("failed to list modules: %v", err)
	}
	defer listResp.Body.Close()
	var listing struct {
		Modules []struct {
			ID       float64 `json:"id"`
			Position int     `json:"position"`
		} `json:"modules"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listing); err != nil {
		testContext.Fatalf("failed to decode module listing: %v", err)
	}
	if len(listing.Modules) != 2 || listing.Modules[0].ID != syntax["id"].(float64) {
		testContext.Fatalf("reorder not reflected in listing: %#v", listing.Modules)
	}

	// Student joins the course and the room.
	postJSON(testContext, apiServer.URL+"/courses/"+courseID+"/enroll", studentToken, ``, http.StatusOK)

	wsURL := "ws" + strings.TrimPrefix(apiServer.URL, "http") + "/ws/chat/room/" + courseID + "?token=" + studentToken
	studentConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		testContext.Fatalf("failed to join chat room: %v", err)
	}
	testContext.Cleanup(func() { _ = studentConn.Close() })

	teacherWS := "ws" + strings.TrimPrefix(apiServer.URL, "http") + "/ws/chat/room/" + courseID + "?token=" + teacherToken
	teacherConn, _, err := websocket.DefaultDialer.Dial(teacherWS, nil)
	if err != nil {
		testContext.Fatalf("teacher failed to join chat room: %v", err)
	}
	testContext.Cleanup(func() { _ = teacherConn.Close() })

	if err := studentConn.WriteJSON(map[string]string{"message": "when is the exam?"}); err != nil {
		testContext.Fatalf("failed to send chat message: %v", err)
	}
	if err := teacherConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		testContext.Fatalf("failed to set read deadline: %v", err)
	}
	var envelope chat.Envelope
	if err := teacherConn.ReadJSON(&envelope); err != nil {
		testContext.Fatalf("teacher did not receive broadcast: %v", err)
	}
	if envelope.Type != chat.EnvelopeTypeChatMessage || envelope.Message != "when is the exam?" {
		testContext.Fatalf("unexpected envelope: %#v", envelope)
	}
	if envelope.User != "Sam Student" {
		testContext.Fatalf("unexpected sender: %q", envelope.User)
	}

	// History catches the message up for late joiners.
	deadline := time.Now().Add(2 * time.Second)
	for {
		historyRequest, err := http.NewRequest(http.MethodGet, apiServer.URL+"/courses/"+courseID+"/chat/messages", http.NoBody)
		if err != nil {
			testContext.Fatalf("failed to construct history request: %v", err)
		}
		historyRequest.Header.Set("Authorization", "Bearer "+teacherToken)
		historyResp, err := http.DefaultClient.Do(historyRequest)
		if err != nil {
			testContext.Fatalf("history request failed: %v", err)
		}
		var history struct {
			Messages []struct {
				User    string `json:"user"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		err = json.NewDecoder(historyResp.Body).Decode(&history)
		_ = historyResp.Body.Close()
		if err != nil {
			testContext.Fatalf("failed to decode history: %v", err)
		}
		if len(history.Messages) == 1 {
			if history.Messages[0].Content != "when is the exam?" || history.Messages[0].User != "Sam Student" {
				testContext.Fatalf("unexpected history entry: %#v", history.Messages[0])
			}
			return
		}
		if time.Now().After(deadline) {
			testContext.Fatalf("chat message never persisted: %#v", history.Messages)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func mustToken(testContext *testing.T, tokenManager *auth.TokenManager, userID, displayName string) string {
	testContext.Helper()
	token, err := tokenManager.IssueToken(userID, displayName, userID+"@example.com")
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func postJSON(testContext *testing.T, url, token, body string, wantStatus int) map[string]any {
	testContext.Helper()
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		testContext.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		testContext.Fatalf("unexpected status for %s: got %d want %d", url, response.StatusCode, wantStatus)
	}
	payload := map[string]any{}
	if wantStatus != http.StatusNoContent {
		if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
			testContext.Fatalf("failed to decode response for %s: %v", url, err)
		}
	}
	return payload
}
