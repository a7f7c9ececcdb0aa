package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/echomind-ai/echomind/pkg/assistant"
	"github.com/echomind-ai/echomind/pkg/config"
	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
)

// Constants for the command-line interface
const (
	cmdHelp     = "!help"
	cmdQuit     = "!quit"
	cmdUser     = "!user"
	cmdTeach    = "!teach"
	cmdForget   = "!forget"
	cmdRule     = "!rule"
	cmdRules    = "!rules"
	cmdTopics   = "!topics"
	cmdTopic    = "!topic"
	cmdResearch = "!research"
	cmdLearn    = "!learn"
	cmdStats    = "!stats"
	cmdFeedback = "!feedback"
	cmdHistory  = "!history"
	cmdProfile  = "!profile"
	cmdMemories = "!memories"
)

// Command-line help text
const helpText = `
EchoMind Client - Command Reference:
-----------------------------------------
!help                     - Show this help message
!user <id>                - Set the current user ID
!teach <input> :: <fact>  - Teach a fact (input and answer separated by ::)
!forget <memory-id>       - Deactivate a memory
!rule <pattern> :: <action> [:: priority] - Add a behavioral rule
!rules                    - List active rules
!topic <name>             - Add a research topic
!topics                   - Show the learning schedule
!research <topic>         - Research a topic right now
!learn on|off             - Enable or disable auto-learning
!stats                    - Show assistant statistics
!feedback <1-5> [note]    - Rate the last answer
!history                  - Show recent conversation turns
!profile                  - Show the current user's interest profile
!memories [category]      - List active memories
!quit                     - Exit the application

Notes:
- Regular text input is treated as a question
- Tab completion is available for commands
- Use up/down arrows for command history`

// historyFile is the file where command history is stored
const historyFile = ".echomind_history"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	stdinMode := flag.Bool("s", false, "Read from stdin and exit when complete")
	flag.Parse()

	// Optional .env for API keys and store paths
	_ = godotenv.Load()

	log.Setup(log.Config{
		Level:  log.WarnLevel,
		Format: log.TextFormat,
	})

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	ctx := context.Background()
	client, err := assistant.NewFromConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize assistant: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	runCLI(ctx, client, cfg, *stdinMode)
}

// cliState carries mutable session state through command processing.
type cliState struct {
	user       string
	lastQuery  string
	lastAnswer string
}

func runCLI(ctx context.Context, client *assistant.Assistant, cfg *config.Config, stdinMode bool) {
	state := &cliState{user: "default-user"}

	if stdinMode {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("\n=== EchoMind Client (stdin mode) ===")
		fmt.Println("Memory Store:", cfg.Memory.Type)
		fmt.Println("Embedding:", cfg.Embedding.Provider)

		for scanner.Scan() {
			input := strings.TrimSpace(scanner.Text())
			if input == "" || strings.HasPrefix(input, "#") || strings.HasPrefix(input, "//") {
				continue
			}
			if input == cmdQuit {
				fmt.Println("Goodbye!")
				return
			}
			fmt.Printf("echomind::%s> %s\n", state.user, input)
			processCommand(ctx, input, client, state)
		}
		if err := scanner.Err(); err != nil {
			fmt.Printf("Error reading stdin: %v\n", err)
		}
		fmt.Println("Goodbye!")
		return
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)
	line.SetCompleter(func(line string) (c []string) {
		commands := []string{
			cmdHelp, cmdQuit, cmdUser, cmdTeach, cmdForget, cmdRule, cmdRules,
			cmdTopic, cmdTopics, cmdResearch, cmdLearn, cmdStats, cmdFeedback,
			cmdHistory, cmdProfile, cmdMemories,
		}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return
	})

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("\n=== EchoMind Client ===")
	fmt.Println("Memory Store:", cfg.Memory.Type)
	fmt.Println("Embedding:", cfg.Embedding.Provider)
	fmt.Printf("Current User: %s\n", state.user)
	fmt.Println("Type !help for available commands.")

	for {
		input, err := line.Prompt(fmt.Sprintf("echomind::%s> ", state.user))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == cmdQuit {
			fmt.Println("Goodbye!")
			break
		}
		processCommand(ctx, input, client, state)
	}
}

// processCommand handles a single command or question.
func processCommand(ctx context.Context, input string, client *assistant.Assistant, state *cliState) {
	if !strings.HasPrefix(input, "!") {
		ask(ctx, input, client, state)
		return
	}

	parts := strings.SplitN(input, " ", 2)
	cmd, rest := parts[0], ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case cmdHelp:
		fmt.Println(helpText)

	case cmdUser:
		if rest == "" {
			fmt.Printf("Current user: %s\n", state.user)
			return
		}
		state.user = rest
		fmt.Printf("User set to: %s\n", state.user)

	case cmdTeach:
		fields := strings.SplitN(rest, "::", 2)
		if len(fields) != 2 {
			fmt.Println("Usage: !teach <input> :: <fact>")
			return
		}
		id, err := client.Teach(ctx, strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), memory.CategoryGeneral)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Learned (memory %s)\n", id)

	case cmdForget:
		if rest == "" {
			fmt.Println("Usage: !forget <memory-id>")
			return
		}
		if err := client.Forget(ctx, rest); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("Forgotten.")

	case cmdRule:
		fields := strings.Split(rest, "::")
		if len(fields) < 2 {
			fmt.Println("Usage: !rule <pattern> :: <action> [:: priority]")
			return
		}
		priority := 0
		if len(fields) >= 3 {
			if p, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil {
				priority = p
			}
		}
		id, err := client.AddRule(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), priority)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Rule added (%s)\n", id)

	case cmdRules:
		ruleList := client.Rules()
		if len(ruleList) == 0 {
			fmt.Println("No active rules.")
			return
		}
		for _, r := range ruleList {
			fmt.Printf("  [%d] %s -> %s (%s)\n", r.Priority, r.Pattern, r.Action, r.ID)
		}

	case cmdTopic:
		if rest == "" {
			fmt.Println("Usage: !topic <name>")
			return
		}
		if err := client.AddTopic(rest); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Topic %q scheduled for research.\n", rest)

	case cmdTopics:
		topics := client.Topics()
		if len(topics) == 0 {
			fmt.Println("No topics scheduled.")
			return
		}
		for _, t := range topics {
			last := "never"
			if !t.LastRun.IsZero() {
				last = t.LastRun.Format("2006-01-02 15:04")
			}
			fmt.Printf("  %s [%s/%s] every %s, last run %s, %d facts\n",
				t.Topic, t.Source, t.Status, t.Interval, last, t.FactsLearned)
		}

	case cmdResearch:
		if rest == "" {
			fmt.Println("Usage: !research <topic>")
			return
		}
		fmt.Printf("Researching %q...\n", rest)
		facts, err := client.ResearchNow(ctx, rest)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Merged %d new facts.\n", facts)

	case cmdLearn:
		switch rest {
		case "on":
			client.EnableAutoLearning(ctx)
			fmt.Println("Auto-learning enabled.")
		case "off":
			client.DisableAutoLearning()
			fmt.Println("Auto-learning disabled.")
		default:
			fmt.Println("Usage: !learn on|off")
		}

	case cmdStats:
		stats, err := client.Stats(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Active memories: %d\n", stats.ActiveMemories)
		fmt.Printf("Active rules:    %d\n", stats.ActiveRules)
		fmt.Printf("Feedback:        %d total, %d positive\n", stats.FeedbackTotal, stats.FeedbackPositive)
		fmt.Printf("Auto-learning:   enabled=%t topics=%d runs=%d facts=%d\n",
			stats.Learning.Enabled, stats.Learning.TotalTopics,
			stats.Learning.TotalRuns, stats.Learning.FactsLearned)
		if len(stats.PendingTopics) > 0 {
			fmt.Println("Pending discoveries:")
			for topic, count := range stats.PendingTopics {
				fmt.Printf("  %s (%d mentions)\n", topic, count)
			}
		}

	case cmdFeedback:
		fields := strings.SplitN(rest, " ", 2)
		rating, convErr := strconv.Atoi(fields[0])
		if state.lastQuery == "" || convErr != nil || rating < 1 || rating > 5 {
			fmt.Println("Usage: !feedback <1-5> [note] (after asking a question)")
			return
		}
		comment := ""
		if len(fields) == 2 {
			comment = fields[1]
		}
		err := client.SubmitFeedback(convo.Feedback{
			UserID:   state.user,
			Query:    state.lastQuery,
			Response: state.lastAnswer,
			Rating:   rating,
			Comment:  comment,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("Thanks for the feedback.")

	case cmdHistory:
		turns := client.History(state.user)
		if len(turns) == 0 {
			fmt.Println("No history yet.")
			return
		}
		for _, t := range turns {
			fmt.Printf("  [%s] Q: %s\n", t.Timestamp.Format("15:04:05"), t.Query)
			fmt.Printf("           A: %s (%.2f via %s)\n", t.Answer, t.Confidence, t.Source)
		}

	case cmdProfile:
		profile := client.Profile(state.user)
		if profile == nil {
			fmt.Println("No profile yet.")
			return
		}
		fmt.Printf("User %s: %d conversations, last %s\n",
			profile.UserID, profile.ConversationCount,
			profile.LastInteraction.Format("2006-01-02 15:04"))
		for word, weight := range profile.Interests {
			fmt.Printf("  interested in: %s (%.0f)\n", word, weight)
		}

	case cmdMemories:
		category := memory.Category(rest)
		records, err := client.Memories(ctx, category, 20, 0)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("No active memories.")
			return
		}
		for _, r := range records {
			fmt.Printf("  [%s] %s -> %s (%.2f, %s)\n", r.Category, r.InputText, r.OutputText, r.Confidence, r.ID)
		}

	default:
		fmt.Printf("Unknown command: %s (try !help)\n", cmd)
	}
}

func ask(ctx context.Context, question string, client *assistant.Assistant, state *cliState) {
	result, err := client.Answer(ctx, state.user, question)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	state.lastQuery = result.NormalizedQuery
	state.lastAnswer = result.Text
	if result.Unknown {
		fmt.Println("I don't know that yet. Ask again and I'll research it.")
		return
	}
	fmt.Printf("%s\n  (confidence %.2f via %s)\n", result.Text, result.Confidence, result.Source)
}
