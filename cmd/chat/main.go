package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"chat-relay/internal/client"
)

var (
	relayURL     = flag.String("url", "http://localhost:8000", "Chat relay base URL")
	modelName    = flag.String("model", "gpt-4.1-mini", "Model to request")
	systemPrompt = flag.String("system", "You are a helpful AI assistant.", "Developer message")
)

func main() {
	flag.Parse()

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY must be set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(*relayURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if err := c.Health(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red(fmt.Sprintf("Relay at %s is not healthy: %v", *relayURL, err)))
		os.Exit(1)
	}

	fmt.Println(boldGreen("Chat relay"))
	fmt.Printf("Using model: %s\n", boldCyan(*modelName))
	fmt.Println("Type your message and press Enter. Type '/reset' to clear history, 'exit' or Ctrl+C to quit.")
	fmt.Println()

	conv := client.NewConversation(*systemPrompt, *modelName, apiKey)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return
		case "/reset":
			conv.Reset()
			fmt.Println("History cleared.")
			continue
		}

		fmt.Print(boldCyan("Assistant: "))
		_, err := conv.Send(ctx, c, input, os.Stdout)
		fmt.Println()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Detail != "" {
				fmt.Fprintln(os.Stderr, red(fmt.Sprintf("Error (%s): %s", apiErr.Code, apiErr.Detail)))
			} else {
				fmt.Fprintln(os.Stderr, red(fmt.Sprintf("Error: %v", err)))
			}
		}
		fmt.Println()
	}
}
