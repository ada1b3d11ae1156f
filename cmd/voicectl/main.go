// Command voicectl talks to a voice agent through the relay server's
// signed-URL and text-to-speech routes using the local microphone and speaker.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/adapters/audio"
	"github.com/satriahrh/convai-relay/adapters/backend"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/internal/convai"
	"github.com/satriahrh/convai-relay/internal/logging"
	"github.com/satriahrh/convai-relay/internal/playback"
	"github.com/satriahrh/convai-relay/usecase"
)

func main() {
	_ = godotenv.Load()

	backendURL := flag.String("backend", envOr("RELAY_BACKEND_URL", "http://localhost:8080"), "relay server base URL")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout for backend calls")
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := backend.NewClient(*backendURL, *timeout, logger)
	if err != nil {
		logger.Fatal("Invalid backend URL", zap.Error(err))
	}

	mic, err := audio.NewMicrophoneCapture(logger)
	if err != nil {
		logger.Fatal("Failed to open microphone", zap.Error(err))
	}
	defer mic.Close()

	speaker, err := audio.NewSpeakerPlayer(logger)
	if err != nil {
		logger.Fatal("Failed to open speaker", zap.Error(err))
	}

	sequencer := playback.NewSequencer(speaker, logger)
	defer sequencer.Close()

	conversation := usecase.NewConversationService(
		client, convai.NewDialer(gorilla.DefaultDialer, logger), mic, client, sequencer, logger)
	// the speaker only renders raw PCM
	conversation.SetSynthesisFormat(entities.FormatPCM16000)
	conversation.SetCallbacks(usecase.Callbacks{
		OnMessage: func(message entities.Message) {
			fmt.Printf("%s: %s\n", message.Role, message.Text)
		},
		OnState: func(state entities.ConversationState) {
			fmt.Printf("[%s]\n", state)
		},
		OnRecording: func(recording bool) {
			if recording {
				fmt.Println("[microphone on]")
			} else {
				fmt.Println("[microphone off]")
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conversation.Run(ctx)
	}()

	fmt.Println("Commands: /start, /stop, /quit. Any other line is sent as text.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conversation.Stop()
			<-done
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				conversation.Stop()
				stop()
				<-done
				return
			}
			switch strings.TrimSpace(line) {
			case "/start":
				conversation.Start()
			case "/stop":
				conversation.Stop()
			default:
				conversation.SendText(line)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
