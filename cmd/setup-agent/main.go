package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/pkg/retell"
)

func main() {
	var (
		create       = flag.Bool("create", false, "Create a new agent backed by the first Retell LLM")
		update       = flag.String("update", "", "Agent ID to apply voice and ambience settings to")
		phoneNumber  = flag.Bool("phone-number", false, "Buy a new outbound phone number")
		agentName    = flag.String("agent-name", "Ted the Bear", "Name of the created agent")
		voiceID      = flag.String("voice", "11labs-Andrew", "Voice ID of the created agent")
		language     = flag.String("language", "en-US", "Language of the created agent")
		ambientSound = flag.String("ambient-sound", "summer-outdoor", "Ambient sound applied on update")
		ambientVol   = flag.Float64("ambient-volume", 1.5, "Ambient sound volume applied on update")
		voiceTemp    = flag.Float64("voice-temperature", 1.1, "Voice temperature applied on update")
	)
	flag.Parse()

	if !*create && *update == "" && !*phoneNumber {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	c, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if c.RetellAPIKey == "" {
		log.Fatal("RETELL_API_KEY is not set")
	}

	client := retell.NewClient(c.RetellBaseURL, c.RetellAPIKey, c.RetellTimeout, &http.Client{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *create {
		llms, err := client.ListLLMs(ctx)
		if err != nil {
			log.Fatalf("Failed to list LLMs: %v", err)
		}
		if len(llms) == 0 {
			log.Fatal("No Retell LLM configured on this account")
		}

		agent, err := client.CreateAgent(ctx, retell.CreateAgentRequest{
			AgentName:      *agentName,
			VoiceID:        *voiceID,
			ResponseEngine: retell.ResponseEngine{LLMID: llms[0].LLMID, Type: "retell-llm"},
			Language:       *language,
		})
		if err != nil {
			log.Fatalf("Failed to create agent: %v", err)
		}
		fmt.Printf("Created agent %s (%s)\n", agent.AgentID, agent.AgentName)
	}

	if *update != "" {
		agent, err := client.UpdateAgent(ctx, *update, retell.UpdateAgentRequest{
			AmbientSound:       ambientSound,
			AmbientSoundVolume: ambientVol,
			VoiceTemperature:   voiceTemp,
		})
		if err != nil {
			log.Fatalf("Failed to update agent: %v", err)
		}
		fmt.Printf("Updated agent %s\n", agent.AgentID)
	}

	if *phoneNumber {
		number, err := client.CreatePhoneNumber(ctx)
		if err != nil {
			log.Fatalf("Failed to create phone number: %v", err)
		}
		fmt.Println(number.PhoneNumber)
	}
}
