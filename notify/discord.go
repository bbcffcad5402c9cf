package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	cls "github.com/mms-notify/app/classes"
	dwh "github.com/nat-echlin/dwhooks"
)

// discord caps embeds at 25 fields, stay well under the 6000 char total
const discordMaxFields = 10

// a single discord embed field
type embedField struct {
	Name  string
	Value string
}

// one embed per populated tier
type tierEmbed struct {
	Title  string
	Colour int
	Fields []embedField
	More   int // institutions left out of Fields
}

func (n *Notifier) discordEmbeds(insts []cls.Institution) []tierEmbed {
	embeds := []tierEmbed{}
	for _, g := range n.tierGroups(insts) {
		emb := tierEmbed{
			Title:  strings.ReplaceAll(g.title, "*", ""),
			Colour: hexColour(cls.UrgencyColour(g.insts[0].DaysUntilExpiry)),
		}
		for i, inst := range g.insts {
			if i == discordMaxFields {
				emb.More = len(g.insts) - discordMaxFields
				break
			}
			emb.Fields = append(emb.Fields, embedField{
				Name:  inst.Name,
				Value: institutionDetails(inst) + "\n" + n.detailURL(inst.UID),
			})
		}
		embeds = append(embeds, emb)
	}
	return embeds
}

// send the notice as discord embeds, a summary embed then one per tier
func (n *Notifier) sendDiscord(ctx context.Context, insts []cls.Institution) bool {
	now := n.now()

	summary := dwh.NewEmbed()
	summary.SetTitle(headerText)
	summary.SetDescription(strings.ReplaceAll(n.summaryText(insts), "*", "**"))
	summary.SetColour(hexColour(cls.UrgencyColour(insts[0].DaysUntilExpiry)))
	summary.SetTimestamp(now.Unix())

	msg := dwh.NewMessage("")
	msg.SetUsername("MMS Expiry Notifier")
	msg.AddEmbed(summary)

	for _, te := range n.discordEmbeds(insts) {
		emb := dwh.NewEmbed()
		emb.SetTitle(te.Title)
		emb.SetColour(te.Colour)
		for _, f := range te.Fields {
			emb.AddField(f.Name, f.Value, false)
		}
		if te.More > 0 {
			emb.SetDescription(fmt.Sprintf("…and %d more", te.More))
		}
		msg.AddEmbed(emb)
	}

	wh := dwh.NewWebhook(n.WebhookURL)
	wh.Client = *n.HTTPClient
	wh.Client.Transport = ctxTransport{ctx: ctx, base: n.HTTPClient.Transport}

	status, err := wh.Send(msg)
	if err != nil {
		if ctx.Err() != nil || strings.Contains(err.Error(), "Timeout exceeded") {
			n.log.Errorf("notify : discord webhook request timed out, %v", err)
		} else {
			n.log.Errorf("notify : network error sending discord webhook, %v", err)
		}
		return false
	}
	if status < 200 || status > 299 {
		n.log.Errorf("notify : failed to send discord notification, status %d", status)
		return false
	}

	n.log.Infof("notify : successfully sent discord notification for %d institutions", len(insts))
	return true
}

// "#FFA500" -> 16753920
func hexColour(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// dwhooks builds its requests without a context, this attaches ours
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(t.ctx))
}
