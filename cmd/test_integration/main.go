package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

var baseURL = "http://localhost:8080"

const rootID = "e379121f-06c6-4e21-ae9d-ae78ec1986a1"

func main() {
	if u := os.Getenv("RSG_URL"); u != "" {
		baseURL = u
	}
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting RSG smoke test...")

	table := uuid.NewString()
	cup := uuid.NewString()
	pose := uuid.NewString()

	fmt.Println("1. Creating nodes...")
	for _, n := range []struct{ id, name string }{{table, "table"}, {cup, "cup"}} {
		reply := send(map[string]any{
			"@worldmodeltype": "RSGUpdate",
			"operation":       "CREATE",
			"parentId":        rootID,
			"node": map[string]any{
				"@graphtype": "Node",
				"id":         n.id,
				"attributes": []map[string]any{{"key": "name", "value": n.name}},
			},
		})
		expect(reply, "updateSuccess", "create "+n.name)
	}

	fmt.Println("2. Creating transform...")
	reply := send(map[string]any{
		"@worldmodeltype": "RSGUpdate",
		"operation":       "CREATE",
		"parentId":        rootID,
		"node": map[string]any{
			"@graphtype":       "Connection",
			"@semanticContext": "Transform",
			"id":               pose,
			"sourceIds":        []string{table},
			"targetIds":        []string{cup},
			"history": []map[string]any{{
				"stamp": map[string]any{"@stamptype": "TimeStampUTCms", "stamp": float64(time.Now().UnixMilli())},
				"transform": map[string]any{
					"type":   "HomogeneousMatrix44",
					"matrix": [][]float64{{1, 0, 0, 0.5}, {0, 1, 0, 0}, {0, 0, 1, 0.8}, {0, 0, 0, 1}},
				},
			}},
		},
	})
	expect(reply, "updateSuccess", "create transform")

	fmt.Println("3. Querying...")
	reply = send(map[string]any{
		"@worldmodeltype": "RSGQuery",
		"query":           "GET_NODES",
		"attributes":      []map[string]any{{"key": "name", "value": "cup"}},
	})
	expect(reply, "querySuccess", "find cup")

	reply = send(map[string]any{
		"@worldmodeltype": "RSGQuery",
		"query":           "GET_TRANSFORM",
		"id":              cup,
		"idReferenceNode": table,
	})
	expect(reply, "querySuccess", "get transform")

	fmt.Println("4. Cleaning up...")
	for _, id := range []string{pose, cup, table} {
		reply = send(map[string]any{
			"@worldmodeltype": "RSGUpdate",
			"operation":       "DELETE_NODE",
			"node":            map[string]any{"id": id},
		})
		expect(reply, "updateSuccess", "delete "+id)
	}
	fmt.Println("PASSED")
}

func expect(reply map[string]any, field, step string) {
	if ok, _ := reply[field].(bool); !ok {
		fmt.Printf("FAILED: %s: %v\n", step, reply["message"])
		os.Exit(1)
	}
	fmt.Printf("PASSED: %s\n", step)
}

func send(envelope map[string]any) map[string]any {
	data, err := json.Marshal(envelope)
	if err != nil {
		fmt.Printf("Error encoding envelope: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(baseURL+"/rsg", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Response: %s\n", string(body))

	var reply map[string]any
	if err := json.Unmarshal(body, &reply); err != nil {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}
	return reply
}
