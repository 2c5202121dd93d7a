package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
)

func chatCMD() *cobra.Command {
	var cfgPath string
	var chat = &cobra.Command{
		Use:   "chat",
		Short: "Interactive drafting session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			asst, err := localAssistant(ctx, cfg)
			if err != nil {
				return err
			}

			sess, greeting, err := asst.StartSession(ctx)
			if err != nil {
				return err
			}
			fmt.Println(greeting)
			fmt.Println()

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					fmt.Printf("Session %s ended.\n", sess.ID)
					return nil
				}
				reply, _, err := asst.ProcessMessage(ctx, sess.ID, line)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				fmt.Println()
				fmt.Println(reply)
				fmt.Println()
			}
		},
	}
	chat.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return chat
}
