package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/RichardoC/orion/internal/client"
)

// terminal renders a streaming reply on stdout.
type terminal struct {
	out io.Writer
}

func (t *terminal) Start(id, title string) {
	fmt.Fprintf(t.out, "[%s] ", title)
}

func (t *terminal) Searching(query string) {
	fmt.Fprintf(t.out, "(searching: %s) ", query)
}

func (t *terminal) Delta(text string) {
	fmt.Fprint(t.out, text)
}

func (t *terminal) Done() {
	fmt.Fprintln(t.out)
}

func (t *terminal) Fail(err error) {
	fmt.Fprintf(t.out, "\nerror: %v\n", err)
}

const help = `commands:
  /new             start a new conversation
  /list            list your conversations
  /open <id>       continue a conversation
  /delete <id>     delete a conversation
  /attach <path>   attach a text, markdown or PDF file to the next message
  /quit            exit`

func main() {
	server := flag.String("server", "http://localhost:3000", "chat server base URL")
	email := flag.String("email", os.Getenv("ORION_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("ORION_PASSWORD"), "account password")
	signup := flag.Bool("signup", false, "create the account before logging in")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (-email/-password or ORION_EMAIL/ORION_PASSWORD)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := client.NewAPI(*server, nil)
	authenticate := api.Login
	if *signup {
		authenticate = api.Signup
	}
	user, err := authenticate(ctx, *email, *password)
	if err != nil {
		log.Fatalf("failed to authenticate: %v", err)
	}
	fmt.Printf("Signed in as %s. Type /help for commands.\n", user.Email)

	c := &chat{api: api, session: client.NewSession(api), term: &terminal{out: os.Stdout}}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if quit := c.handle(ctx, strings.TrimSpace(scanner.Text())); quit {
			return
		}
	}
}

type chat struct {
	api     *client.API
	session *client.Session
	term    *terminal
	pending *client.Attachment
}

func (c *chat) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(help)
	case "/new":
		c.session.Open("")
		fmt.Println("Started a new conversation.")
	case "/list":
		c.list(ctx)
	case "/open":
		c.open(ctx, arg)
	case "/delete":
		if err := c.api.DeleteConversation(ctx, arg); err != nil {
			fmt.Printf("delete failed: %v\n", err)
			return false
		}
		if c.session.ConversationID() == arg {
			c.session.Open("")
		}
		fmt.Println("Conversation deleted.")
	case "/attach":
		c.attach(ctx, arg)
	default:
		fmt.Println(help)
	}
	return false
}

func (c *chat) send(ctx context.Context, message string) {
	err := c.session.Send(ctx, message, c.pending, c.term)
	switch {
	case errors.Is(err, client.ErrBusy):
		fmt.Println("Still answering the previous message.")
	case err != nil && c.pending != nil:
		fmt.Println("The attachment will be sent again with your next message.")
	default:
		c.pending = nil
	}
}

func (c *chat) list(ctx context.Context) {
	conversations, err := c.api.Conversations(ctx)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(conversations) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	current := c.session.ConversationID()
	for _, conv := range conversations {
		marker := " "
		if conv.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %s  %-43s %3d msgs  %s\n", marker, conv.ID, conv.Title, conv.MessageCount, conv.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func (c *chat) open(ctx context.Context, id string) {
	conv, err := c.api.Conversation(ctx, id)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)
		return
	}
	c.session.Open(conv.ID)
	fmt.Printf("== %s ==\n", conv.Title)
	for _, msg := range conv.Messages {
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
	}
}

func (c *chat) attach(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("attach failed: %v\n", err)
		return
	}
	defer f.Close()

	up, err := c.api.Upload(ctx, path, f)
	if err != nil {
		fmt.Printf("attach failed: %v\n", err)
		return
	}
	c.pending = &client.Attachment{Name: filepath.Base(path), Content: up.Content, IsImage: up.IsImage}
	fmt.Printf("Attached %s (%s, %d bytes). It will be sent with your next message.\n", path, up.FileType, up.FileSize)
}
