package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("BIOGUARD_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 60 * time.Second}

	fmt.Println("Starting smoke test against", baseURL)
	userID := fmt.Sprintf("smoke-%d", time.Now().Unix())

	fmt.Println("1. Analyzing a chat query...")
	var analysis struct {
		RecordID string `json:"record_id"`
		Result   struct {
			Provider string `json:"provider"`
			Degraded bool   `json:"degraded"`
		} `json:"result"`
	}
	payload := map[string]interface{}{
		"user_id": userID,
		"kind":    "chat",
		"text":    "Is a daily glass of orange juice a problem for diabetes?",
		"profile": map[string][]string{"conditions": {"diabetes"}},
	}
	if !send(client, baseURL, http.MethodPost, "/v1/analyses", payload, http.StatusOK, &analysis) {
		fail("analyze")
	}
	fmt.Printf("PASSED: analyze (provider=%s degraded=%v)\n", analysis.Result.Provider, analysis.Result.Degraded)

	fmt.Println("2. Reading history...")
	var history struct {
		Records []json.RawMessage `json:"records"`
	}
	if !send(client, baseURL, http.MethodGet, "/v1/users/"+userID+"/history", nil, http.StatusOK, &history) || len(history.Records) != 1 {
		fail("history")
	}
	fmt.Println("PASSED: history")

	fmt.Println("3. Finding similar records...")
	if !send(client, baseURL, http.MethodGet, "/v1/records/"+analysis.RecordID+"/similar", nil, http.StatusOK, nil) {
		fail("similar")
	}
	fmt.Println("PASSED: similar")

	fmt.Println("4. Deleting the record...")
	if !send(client, baseURL, http.MethodDelete, "/v1/records/"+analysis.RecordID, nil, http.StatusNoContent, nil) {
		fail("delete")
	}
	fmt.Println("PASSED: delete")
}

func fail(step string) {
	fmt.Println("FAILED:", step)
	os.Exit(1)
}

func send(client *http.Client, baseURL, method, endpoint string, payload interface{}, want int, out interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return false
		}
	}
	return true
}
