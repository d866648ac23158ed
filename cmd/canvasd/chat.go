package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/config"
	"github.com/smallnest/researchcanvas/models"
	"github.com/spf13/cobra"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	confirmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func chatCmd(cfgPath *string) *cobra.Command {
	var (
		agentName string
		threadID  string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if threadID == "" {
				threadID = uuid.NewString()
			}
			s := &chatSession{
				runner:   a.runner,
				threadID: threadID,
				provider: models.ForAgent(agentName, a.defaultProvider()),
				in:       bufio.NewScanner(cmd.InOrStdin()),
				out:      cmd.OutOrStdout(),
			}
			return s.loop(cmd)
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", models.ResearchAgent, "agent name; "+models.ResearchAgentGoogle+" pins the Google model")
	cmd.Flags().StringVar(&threadID, "thread", "", "thread id to continue (default is a new thread)")
	return cmd
}

type chatSession struct {
	runner   *canvas.Runner
	threadID string
	provider models.Provider
	in       *bufio.Scanner
	out      io.Writer
}

func (s *chatSession) loop(cmd *cobra.Command) error {
	fmt.Fprintln(s.out, dimStyle.Render("thread "+s.threadID+" (type /exit to quit)"))
	for {
		line, ok := s.read(promptStyle.Render("you> "))
		if !ok {
			return nil
		}
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		res, err := s.runner.Run(cmd.Context(), canvas.Turn{
			ThreadID: s.threadID,
			Messages: []canvas.Message{canvas.HumanMessage(line)},
			Provider: s.provider,
		})
		for err == nil && res.Interrupted {
			res, err = s.confirm(cmd, res)
		}
		if err != nil {
			fmt.Fprintln(s.out, errorStyle.Render("error: "+err.Error()))
			continue
		}
		s.print(res)
	}
}

// confirm asks the user to approve a pending resource deletion and resumes
// the thread with the answer.
func (s *chatSession) confirm(cmd *cobra.Command, res *canvas.Result) (*canvas.Result, error) {
	var pending canvas.ToolCall
	if res.Pending != nil {
		pending = *res.Pending
	}
	fmt.Fprintln(s.out, confirmStyle.Render("Delete these resources? "+pending.Arguments))
	answer, ok := s.read(confirmStyle.Render("YES/NO> "))
	if !ok {
		answer = "NO"
	}
	ctx := models.WithProvider(cmd.Context(), s.provider)
	return s.runner.Resume(ctx, s.threadID, pending.ID, strings.ToUpper(answer))
}

func (s *chatSession) print(res *canvas.Result) {
	if res.Reply.Content != "" {
		fmt.Fprintln(s.out, replyStyle.Render(res.Reply.Content))
	}
	st := res.State
	if len(st.Campaigns) > 0 {
		titles := make([]string, 0, len(st.Campaigns))
		for _, c := range st.Campaigns {
			titles = append(titles, fmt.Sprintf("%s (%s)", c.Title, c.Status))
		}
		fmt.Fprintln(s.out, dimStyle.Render("campaigns: "+strings.Join(titles, ", ")))
	}
	if len(st.Resources) > 0 {
		fmt.Fprintln(s.out, dimStyle.Render(fmt.Sprintf("resources: %d", len(st.Resources))))
	}
}

func (s *chatSession) read(prompt string) (string, bool) {
	fmt.Fprint(s.out, prompt)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}
