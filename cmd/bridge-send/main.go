package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/agentbridge/agentbridge-go/pkg/api"
)

func buildURL(host, action string) string {
	u, _ := url.Parse(host)
	u.Path = path.Join(u.Path, action)
	return u.String()
}

func submit(host, text, conversationID string) error {
	body, err := json.Marshal(api.SubmitRequest{
		Text:           text,
		ConversationID: conversationID,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(buildURL(host, "api/submit"), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var response api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge answered status code %d: %s", resp.StatusCode, response.Error)
	}
	if response.Error != "" {
		if response.FailureKind != "" {
			return fmt.Errorf("%s: %s", response.FailureKind, response.Error)
		}
		return fmt.Errorf("%s", response.Error)
	}

	fmt.Println(response.Message.Text)
	return nil
}

func latest(host, conversationID string) error {
	target := buildURL(host, "api/latest")
	if conversationID != "" {
		target += "?conversation_id=" + url.QueryEscape(conversationID)
	}

	resp, err := http.Get(target)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var response api.LatestResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return err
	}

	if response.Error != "" {
		return fmt.Errorf("%s", response.Error)
	}

	fmt.Println(response.Message.Text)
	return nil
}

func showHelp() {
	fmt.Printf("bridge-send [-c CONVERSATION] [TEXT]...\n")
	fmt.Printf("bridge-send -latest [-c CONVERSATION]\n\n")
	fmt.Printf("  sends a message through the local bridge, or fetches the latest reply;\n")
	fmt.Printf("  without TEXT arguments the message is read from stdin\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  bridge-send \"@translator hello world\"\n")
	fmt.Printf("  bridge-send -c meeting-42 <<< \"hello world\"\n")
	fmt.Printf("  bridge-send -latest -c meeting-42\n")
}

func main() {
	args := os.Args[1:]

	host := os.Getenv("BRIDGEHOST")
	if host == "" {
		host = "http://127.0.0.1:8080"
	}

	var (
		conversationID string
		fetchLatest    bool
		texts          []string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "help", "--help", "-h":
			showHelp()
			return

		case "-latest":
			fetchLatest = true

		case "-c":
			if i+1 >= len(args) {
				fmt.Printf("-c needs a conversation id\n\n")
				showHelp()
				os.Exit(1)
			}
			i++
			conversationID = args[i]

		default:
			texts = append(texts, args[i])
		}
	}

	if fetchLatest {
		if err := latest(host, conversationID); err != nil {
			fmt.Printf("Fetching latest message failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	text := strings.Join(texts, " ")
	if text == "" {
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Failed to read data from stdin: %v\n", err)
			os.Exit(1)
		}
		text = strings.TrimRight(string(stdin), "\n")
	}

	if err := submit(host, text, conversationID); err != nil {
		fmt.Printf("Sending message failed: %v\n", err)
		os.Exit(1)
	}
}
