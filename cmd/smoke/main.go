// Command smoke drives a running API end to end: it mints a token, asks
// for SQL, verifies the returned certificate and reads the run back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/middleware"
	"github.com/axiom/sqlagent/internal/models"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1", "API base URL")
	workspace := flag.String("workspace", "default", "workspace ID")
	question := flag.String("question", "How many customers placed an order last month?", "question to ask")
	flag.Parse()

	cfg := config.Load()

	token, err := middleware.NewAuthenticator(cfg.JWTSecret, zap.NewNop()).
		IssueToken("smoke-"+uuid.NewString(), middleware.RoleAnalyst, time.Hour)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	call := func(method, path string, body any, out any) int {
		var buf bytes.Buffer
		if body != nil {
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				log.Fatalf("Encoding request: %v", err)
			}
		}
		req, err := http.NewRequest(method, *baseURL+path, &buf)
		if err != nil {
			log.Fatalf("Building request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if out != nil {
			_ = json.NewDecoder(resp.Body).Decode(out)
		}
		return resp.StatusCode
	}

	log.Printf("Asking %q in workspace %s", *question, *workspace)
	var res models.Result
	status := call(http.MethodPost, "/sql/generate", map[string]string{
		"workspace_id": *workspace,
		"question":     *question,
	}, &res)
	if status == http.StatusUnauthorized {
		log.Fatal("Unauthorized. Does JWT_SECRET match the server?")
	}
	if status != http.StatusOK {
		log.Fatalf("Expected 200, got %d", status)
	}
	log.Printf("Run %s finished: %s at tier %s by %s", res.RunID, res.Case, res.Tier, res.Agent)
	fmt.Println(res.SQL)

	if res.Certificate != nil {
		var check struct {
			Valid  bool   `json:"valid"`
			Reason string `json:"reason"`
		}
		call(http.MethodPost, "/certificates/verify", map[string]any{
			"certificate": res.Certificate,
			"sql":         res.SQL,
		}, &check)
		if !check.Valid {
			log.Fatalf("Certificate rejected: %s", check.Reason)
		}
		log.Println("Certificate verified")
	}

	// history is written asynchronously
	for i := 0; i < 10; i++ {
		var rec models.RunRecord
		if call(http.MethodGet, "/runs/"+res.RunID.String(), nil, &rec) == http.StatusOK {
			log.Printf("SUCCESS: run recorded with status %s", rec.Status)
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Println("Run not found in history (is DATABASE_URL configured on the server?)")
}
