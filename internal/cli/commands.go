package cli

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mawneychat/pkg/models"
	"mawneychat/pkg/outbox"
	"mawneychat/pkg/polling"
)

type userView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func newLoginCmd(opts *options) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign the daemon in as a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			var out struct {
				User userView `json:"user"`
			}
			in := map[string]string{"email": args[0], "password": password}
			if err := newDaemon(opts.addr).call("POST", "/v1/login", in, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Signed in as %s <%s> (%s)\n", out.User.Name, out.User.Email, out.User.ID)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

// readPassword reads without echo from a terminal, or a line from stdin.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newUsersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the other users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Users []userView `json:"users"`
			}
			if err := newDaemon(opts.addr).call("GET", "/v1/users", nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				row(w, "ID", "NAME", "EMAIL")
				for _, u := range out.Users {
					row(w, u.ID, u.Name, u.Email)
				}
			})
		},
	}
}

func newChatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the signed-in user's chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Chats []models.Chat `json:"chats"`
			}
			if err := newDaemon(opts.addr).call("GET", "/v1/chats", nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				writeChats(w, out.Chats, time.Now())
			})
		},
	}
}

func writeChats(w *tabwriter.Writer, chats []models.Chat, now time.Time) {
	row(w, "ID", "NAME", "TYPE", "MEMBERS", "UNREAD", "LAST")
	for _, c := range chats {
		last := "-"
		if c.LastMessage != nil {
			last = fmt.Sprintf("%s (%s)", clip(c.LastMessage.Text, 40), humanize.RelTime(c.LastMessage.Timestamp, now, "ago", "from now"))
		}
		row(w, c.ID, c.Name, c.Type, len(c.Participants), c.UnreadCount, last)
	}
}

func newMessagesCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <chatId>",
		Short: "Show a chat's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/chats/" + url.PathEscape(args[0]) + "/messages"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var out struct {
				Messages []models.Message `json:"messages"`
			}
			if err := newDaemon(opts.addr).call("GET", path, nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				writeMessages(w, out.Messages)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the newest N messages")
	return cmd
}

func writeMessages(w *tabwriter.Writer, msgs []models.Message) {
	row(w, "TIME", "FROM", "TYPE", "TEXT", "READ BY")
	for _, m := range msgs {
		text := m.Text
		if m.Attachment != nil {
			text = strings.TrimSpace(text + " [attachment " + humanize.Bytes(uint64(len(*m.Attachment))) + "]")
		}
		row(w, m.Timestamp.Local().Format("2006-01-02 15:04"), m.SenderID, m.Type, clip(text, 60), strings.Join(m.ReadBy, ","))
	}
}

func newSendCmd(opts *options) *cobra.Command {
	var (
		typ        string
		attachment string
	)
	cmd := &cobra.Command{
		Use:   "send <chatId> [text]",
		Short: "Send a message, optionally with a file attachment",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{"type": typ}
			if len(args) == 2 {
				in["text"] = args[1]
			}
			if attachment != "" {
				uri, kind, err := dataURI(attachment)
				if err != nil {
					return err
				}
				in["attachment"] = uri
				if !cmd.Flags().Changed("type") {
					in["type"] = kind
				}
			}
			var out struct {
				Message models.Message `json:"message"`
			}
			path := "/v1/chats/" + url.PathEscape(args[0]) + "/messages"
			if err := newDaemon(opts.addr).call("POST", path, in, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Sent %s\n", out.Message.ID)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(models.MessageText), "message type: text, image or document")
	cmd.Flags().StringVarP(&attachment, "attachment", "a", "", "file to attach")
	return cmd
}

func newReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read <chatId>",
		Short: "Mark every message in a chat as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Marked      int `json:"marked"`
				UnreadCount int `json:"unreadCount"`
			}
			path := "/v1/chats/" + url.PathEscape(args[0]) + "/read"
			if err := newDaemon(opts.addr).call("POST", path, nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "Marked %d message(s) read\n", out.Marked)
			})
		},
	}
}

func newDirectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "direct <userId>",
		Short: "Open (or create) the direct chat with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createChat(opts, "/v1/chats/direct", map[string]any{"userId": args[0]})
		},
	}
}

func newGroupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "group <name> <userId>...",
		Short: "Create a group chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createChat(opts, "/v1/chats/group", map[string]any{"name": args[0], "participants": args[1:]})
		},
	}
}

func createChat(opts *options, path string, in map[string]any) error {
	var out struct {
		Chat models.Chat `json:"chat"`
	}
	if err := newDaemon(opts.addr).call("POST", path, in, &out); err != nil {
		return err
	}
	return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
		writeChats(w, []models.Chat{out.Chat}, time.Now())
	})
}

func newLeaveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <chatId>",
		Short: "Leave a chat; other participants keep it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Left bool `json:"left"`
			}
			path := "/v1/chats/" + url.PathEscape(args[0]) + "/leave"
			if err := newDaemon(opts.addr).call("POST", path, nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				if out.Left {
					fmt.Fprintln(w, "Left chat")
				} else {
					fmt.Fprintln(w, "Chat not found")
				}
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <chatId>",
		Short: "Delete a chat for every participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("delete removes the chat for all participants; pass --yes to confirm")
			}
			var out struct {
				Deleted bool `json:"deleted"`
			}
			if err := newDaemon(opts.addr).call("DELETE", "/v1/chats/"+url.PathEscape(args[0]), nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				if out.Deleted {
					fmt.Fprintln(w, "Deleted chat")
				} else {
					fmt.Fprintln(w, "Chat not found")
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newUnreadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show unread counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Total int            `json:"totalUnreadCount"`
				Chats map[string]int `json:"chats"`
			}
			if err := newDaemon(opts.addr).call("GET", "/v1/unread", nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				row(w, "CHAT", "UNREAD")
				for _, id := range slices.Sorted(maps.Keys(out.Chats)) {
					row(w, id, out.Chats[id])
				}
				row(w, "total", out.Total)
			})
		},
	}
}

func newPollCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Check for new messages now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Update polling.Update `json:"update"`
			}
			if err := newDaemon(opts.addr).call("POST", "/v1/poll", nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				news := "no new messages"
				if out.Update.HasNewMessages {
					news = "new messages"
				}
				fmt.Fprintf(w, "%s, %d unread\n", news, out.Update.TotalUnreadCount)
			})
		},
	}
}

func newOutboxCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "List queued and failed remote writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Pending []outbox.Op `json:"pending"`
				Failed  []outbox.Op `json:"failed"`
			}
			if err := newDaemon(opts.addr).call("GET", "/v1/outbox", nil, &out); err != nil {
				return err
			}
			return render(opts.out, opts.output, out, func(w *tabwriter.Writer) {
				row(w, "SEQ", "KIND", "CHAT", "STATUS", "ATTEMPTS", "ERROR")
				for _, op := range append(out.Pending, out.Failed...) {
					row(w, op.Seq, op.Kind, op.ChatID, op.Status, op.Attempts, clip(op.Error, 40))
				}
			})
		},
	}
}
