package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/firstaid"
)

func main() {
	_ = godotenv.Load()

	c, err := config.NewConfig()
	if err != nil {
		slog.Error("could not create config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcriptionFile, exists := os.LookupEnv("TRANSCRIPTION_FILE")
	if !exists {
		slog.Error("TRANSCRIPTION_FILE environment variable is required")
		os.Exit(1)
	}

	transcriptionBytes, err := os.ReadFile(transcriptionFile)
	if err != nil {
		slog.Error("could not read transcription file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	imageResult := map[string]any{}
	if imageResultFile, ok := os.LookupEnv("IMAGE_RESULT_FILE"); ok {
		imageResultBytes, err := os.ReadFile(imageResultFile)
		if err != nil {
			slog.Error("could not read image result file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := json.Unmarshal(imageResultBytes, &imageResult); err != nil {
			slog.Error("could not parse image result file", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	chatModel, err := firstaid.NewChatModel(c)
	if err != nil {
		slog.Error("could not create chat model", slog.String("error", err.Error()))
		os.Exit(1)
	}

	narrator := firstaid.NewNarrator(chatModel, c.LLMTemperature, c.LLMMaxTokens)

	if _, debug := os.LookupEnv("PRINT_PROMPT"); debug {
		fmt.Println(firstaid.BuildPrompt(string(transcriptionBytes), imageResult))
		fmt.Println("---")
	}

	fmt.Println(narrator.GenerateFirstAid(context.Background(), string(transcriptionBytes), imageResult))
}
