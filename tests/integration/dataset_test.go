package integration

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestGenerateAndDownloadDataset(t *testing.T) {
	ts := setupTestServer(t)

	projectID, images := createProject(t, ts, "Dataset project", "You describe images.", 2)

	// Complete one record and pin it to the train split.
	payload := map[string]string{
		"image":         images[0],
		"sys":           "You describe images.",
		"user":          "Describe this.",
		"label":         "A tiny square.",
		"dataset_split": "train",
	}
	resp := doJSON(t, http.MethodPost, ts.Server.URL+"/annotation/"+projectID, payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Failed to update annotation: %d", resp.StatusCode)
	}

	genResp := doJSON(t, http.MethodPost, ts.Server.URL+"/datasets/"+projectID+"/generate?split=train", nil)
	defer genResp.Body.Close()
	if genResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from generate, got %d", genResp.StatusCode)
	}

	var generated struct {
		Datasets []struct {
			Split    string `json:"split"`
			Records  int    `json:"records"`
			Download string `json:"download"`
		} `json:"datasets"`
	}
	if err := json.NewDecoder(genResp.Body).Decode(&generated); err != nil {
		t.Fatalf("Failed to decode generate response: %v", err)
	}
	if len(generated.Datasets) != 1 {
		t.Fatalf("Expected 1 dataset, got %d", len(generated.Datasets))
	}
	if generated.Datasets[0].Records != 1 {
		t.Errorf("Expected 1 exported record, got %d", generated.Datasets[0].Records)
	}

	dlResp, err := http.Get(ts.Server.URL + generated.Datasets[0].Download)
	if err != nil {
		t.Fatalf("Download request failed: %v", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from download, got %d", dlResp.StatusCode)
	}

	lines := 0
	scanner := bufio.NewScanner(dlResp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		if !strings.Contains(scanner.Text(), "A tiny square.") {
			t.Error("Export line missing assistant label")
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Failed to scan download: %v", err)
	}
	if lines != 1 {
		t.Errorf("Expected 1 JSONL line, got %d", lines)
	}

	t.Run("BothSplits", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.Server.URL+"/datasets/"+projectID+"/generate", nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}

		var both struct {
			Datasets []struct {
				Split string `json:"split"`
			} `json:"datasets"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&both); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(both.Datasets) != 2 {
			t.Errorf("Expected train and val artifacts, got %d", len(both.Datasets))
		}
	})

	t.Run("UnknownToken", func(t *testing.T) {
		resp, err := http.Get(ts.Server.URL + "/datasets/download/not-a-token")
		if err != nil {
			t.Fatalf("Download request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 for unknown token, got %d", resp.StatusCode)
		}
	})

	t.Run("InvalidSplit", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.Server.URL+"/datasets/"+projectID+"/generate?split=test", nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for invalid split, got %d", resp.StatusCode)
		}
	})

	t.Run("UnknownProject", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, ts.Server.URL+"/datasets/no-such-project/generate?split=train", nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 for unknown project, got %d", resp.StatusCode)
		}
	})

	// Runs last: deleting the project must invalidate its download tokens.
	t.Run("DeleteDropsTokens", func(t *testing.T) {
		genResp := doJSON(t, http.MethodPost, ts.Server.URL+"/datasets/"+projectID+"/generate?split=train", nil)
		defer genResp.Body.Close()
		if genResp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200 from generate, got %d", genResp.StatusCode)
		}
		var generated struct {
			Datasets []struct {
				Download string `json:"download"`
			} `json:"datasets"`
		}
		if err := json.NewDecoder(genResp.Body).Decode(&generated); err != nil {
			t.Fatalf("Failed to decode generate response: %v", err)
		}
		if len(generated.Datasets) != 1 {
			t.Fatalf("Expected 1 dataset, got %d", len(generated.Datasets))
		}

		delResp := doJSON(t, http.MethodDelete, ts.Server.URL+"/projects/delete/"+projectID, nil)
		delResp.Body.Close()
		if delResp.StatusCode != http.StatusOK {
			t.Fatalf("Delete failed: %d", delResp.StatusCode)
		}

		dlResp, err := http.Get(ts.Server.URL + generated.Datasets[0].Download)
		if err != nil {
			t.Fatalf("Download request failed: %v", err)
		}
		defer dlResp.Body.Close()
		if dlResp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 after project delete, got %d", dlResp.StatusCode)
		}
	})
}
