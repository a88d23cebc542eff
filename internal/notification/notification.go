/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/faucet/internal/request"
	"github.com/sirupsen/logrus"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// Notifier reports conditions operators have to act on. A funding account that ran
// dry needs a refill; any other error means something is broken.
type Notifier struct {
	webhookURL string
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier posting to a Slack webhook. With an empty URL
// notifications are only logged.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{webhookURL: webhookURL}
}

// NotifyFundsExhausted reports that a transfer from account failed inside its block.
func (n *Notifier) NotifyFundsExhausted(account, reason string) {
	logrus.WithFields(logrus.Fields{
		"account": account,
		"reason":  reason,
	}).Error("funding account cannot cover airdrops")

	n.send(buildMessage("Faucet needs a refill 🪫", []string{
		fmt.Sprintf("*Funding account:*\n%s", account),
		fmt.Sprintf("*Reason:*\n%s", reason),
	}))
}

// NotifyError reports an unexpected failure.
func (n *Notifier) NotifyError(systemError error) {
	logrus.Error(systemError)
	n.send(buildMessage("Error From Faucet 🐞", []string{
		fmt.Sprintf("*Error:*\n%v", systemError),
	}))
}

// Wait blocks until notifications already handed to Slack are delivered or failed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(message slackMessage) {
	if n.webhookURL == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := request.PostJSON(ctx, n.webhookURL, message, nil); err != nil {
			logrus.WithError(err).Warn("failed to send slack notification")
		}
	}()
}

func buildMessage(title string, fields []string) slackMessage {
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
	}}
	for _, field := range fields {
		blocks = append(blocks, slackBlock{
			Type:   "section",
			Fields: []slackText{{Type: "mrkdwn", Text: field}},
		})
	}
	blocks = append(blocks, slackBlock{
		Type:   "section",
		Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", time.Now().Format(time.RFC822))}},
	})
	return slackMessage{Blocks: blocks}
}
