package demo

import (
	"errors"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/ir"
)

// Pager is a collaborator the demo never provides, so Welcome_Page never
// binds.
type Pager interface {
	Page(to string) error
}

// Newsletter manages subscriptions.
type Newsletter struct{}

func (n *Newsletter) Directives() []ir.Directive {
	return []ir.Directive{
		ir.Async{Owner: "Subscribe", Target: "Welcome", After: true},
		ir.Fork{Owner: "Broadcast", Targets: []string{"Publish", "Archive"}, FailFast: true},
	}
}

// Subscribe registers email; the welcome mail is sent in the background.
func (n *Newsletter) Subscribe(email string) (string, error) {
	if !strings.Contains(email, "@") {
		return "", errors.New("invalid email " + email)
	}
	return "subscribed " + email, nil
}

func (n *Newsletter) Welcome_Mail(m *Mailer, email string) {
	m.Send(email, "welcome")
}

func (n *Newsletter) Welcome_Page(p Pager, email string) error {
	return p.Page(email)
}

// Broadcast sends issue to every channel.
func (n *Newsletter) Broadcast(issue string) string {
	return "broadcast " + issue
}

func (n *Newsletter) Publish(m *Mailer, issue string) error {
	if issue == "" {
		return errors.New("empty issue")
	}
	m.Send("subscribers", issue)
	return nil
}

func (n *Newsletter) Archive(issue string) error {
	return nil
}
