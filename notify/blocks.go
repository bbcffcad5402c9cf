package notify

import (
	"fmt"
	"strings"
	"time"

	cls "github.com/mms-notify/app/classes"
)

// Block kit message parts. Only the variants the expiry notice uses.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type Button struct {
	Type  string `json:"type"`
	Text  Text   `json:"text"`
	URL   string `json:"url"`
	Style string `json:"style,omitempty"`
}

type Block struct {
	Type      string  `json:"type"`
	Text      *Text   `json:"text,omitempty"`
	Elements  []Text  `json:"elements,omitempty"`
	Accessory *Button `json:"accessory,omitempty"`
}

type Payload struct {
	Blocks []Block `json:"blocks"`
}

const (
	headerText   = "🔔 Institution Account Expiry Notice"
	footerText   = "If you have any questions, please contact the system administrator"
	noContactMsg = "⚠️ No contact info"
	detailsLabel = "View details"
)

func header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

func contextLine(text string) Block {
	return Block{Type: "context", Elements: []Text{{Type: "mrkdwn", Text: text}}}
}

func section(text string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: text}}
}

func divider() Block {
	return Block{Type: "divider"}
}

// one populated urgency tier, in render order
type tierGroup struct {
	tier  cls.Tier
	title string
	insts []cls.Institution
}

func (n *Notifier) tierGroups(insts []cls.Institution) []tierGroup {
	urgent, warning, notice := cls.Partition(insts)
	all := []tierGroup{
		{cls.TierUrgent, fmt.Sprintf("🚨 *Urgent - expiring within %d days*", cls.UrgentMaxDays), urgent},
		{cls.TierWarning, fmt.Sprintf("⚠️ *Warning - expiring within %d days*", cls.WarningMaxDays), warning},
		{cls.TierNotice, fmt.Sprintf("📢 *Notice - expiring within %d days*", n.NoticeMaxDays), notice},
	}

	groups := []tierGroup{}
	for _, g := range all {
		if len(g.insts) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

func (n *Notifier) summaryText(insts []cls.Institution) string {
	urgent, warning, notice := cls.Partition(insts)
	return fmt.Sprintf(
		"*Notification Summary*\n"+
			"• Urgent (within %d days): %d institutions\n"+
			"• Warning (%d-%d days): %d institutions\n"+
			"• Notice (%d-%d days): %d institutions\n"+
			"• Total: %d institutions",
		cls.UrgentMaxDays, len(urgent),
		cls.UrgentMaxDays+1, cls.WarningMaxDays, len(warning),
		cls.WarningMaxDays+1, n.NoticeMaxDays, len(notice),
		len(insts),
	)
}

// BuildBlocks renders the expiry notice for insts, which must already be
// sorted nearest to expire first. Each populated tier is followed by a
// divider except the last one.
func (n *Notifier) BuildBlocks(insts []cls.Institution, now time.Time) []Block {
	blocks := []Block{
		header(headerText),
		contextLine("Updated at: " + now.Format("2006-01-02 15:04:05")),
		divider(),
		section(n.summaryText(insts)),
		divider(),
	}

	groups := n.tierGroups(insts)
	for i, g := range groups {
		blocks = append(blocks, section(g.title))
		for _, inst := range g.insts {
			blocks = append(blocks, n.institutionBlock(inst))
		}
		if i < len(groups)-1 {
			blocks = append(blocks, divider())
		}
	}

	return append(blocks, contextLine(footerText))
}

func (n *Notifier) institutionBlock(inst cls.Institution) Block {
	b := section(institutionText(inst))
	b.Accessory = &Button{
		Type:  "button",
		Text:  Text{Type: "plain_text", Text: detailsLabel, Emoji: true},
		URL:   n.detailURL(inst.UID),
		Style: "primary",
	}
	return b
}

func (n *Notifier) detailURL(uid string) string {
	base := n.DetailURLBase
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + uid
}

// the contact bullets worth showing, or the no contact marker
func contactLines(inst cls.Institution) []string {
	lines := []string{}
	if cls.HasValue(inst.ContactPerson) {
		lines = append(lines, "Contact: "+inst.ContactPerson)
	}
	if cls.HasValue(inst.ContactNumber) {
		lines = append(lines, "Phone: "+inst.ContactNumber)
	}
	if cls.HasValue(inst.Address) {
		lines = append(lines, "Address: "+inst.Address)
	}

	if len(lines) == 0 {
		return []string{noContactMsg}
	}
	return lines
}

func orNA(s string) string {
	if s == "" {
		return cls.NotAvailable
	}
	return s
}

// institution details without the name line
func institutionDetails(inst cls.Institution) string {
	return fmt.Sprintf(
		"• Plan: %s\n• Expiry date: %s\n• Days remaining: %d days\n• %s",
		orNA(inst.PlanName), orNA(inst.ExpiryDate), inst.DaysUntilExpiry,
		strings.Join(contactLines(inst), "\n• "),
	)
}

func institutionText(inst cls.Institution) string {
	return fmt.Sprintf("*%s*\n%s", inst.Name, institutionDetails(inst))
}
