package publish

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

const maxEmbedDescription = 2048

// DiscordPublisher delivers content to a Discord channel as a message embed.
type DiscordPublisher struct {
	channel   string
	session   *discordgo.Session
	channelID string
}

// NewDiscordPublisher creates a Discord-backed publisher. The session is
// shared and managed by the caller.
func NewDiscordPublisher(channel string, session *discordgo.Session, channelID string) *DiscordPublisher {
	return &DiscordPublisher{
		channel:   channel,
		session:   session,
		channelID: channelID,
	}
}

func (d *DiscordPublisher) Channel() string {
	return d.channel
}

// AttemptPublish sends the draft as an embed and maps Discord REST errors to
// the retry taxonomy.
func (d *DiscordPublisher) AttemptPublish(ctx context.Context, req *Request) (*Result, error) {
	embed := d.buildEmbed(req)

	msg, err := d.session.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyDiscordError(d.channel, err)
	}

	return &Result{ExternalPostID: msg.ID}, nil
}

func (d *DiscordPublisher) buildEmbed(req *Request) *discordgo.MessageEmbed {
	description := req.Summary
	if description == "" {
		description = req.Body
	}
	if len(description) > maxEmbedDescription {
		description = description[:maxEmbedDescription-3] + "..."
	}

	embed := &discordgo.MessageEmbed{
		Title:       req.Title,
		Description: description,
		URL:         req.ExternalURL,
	}
	if req.IsBreaking {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Breaking"}
	}
	return embed
}

func classifyDiscordError(channel string, err error) *Error {
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{
				Kind:      KindTransient,
				AuthError: true,
				Err:       fmt.Errorf("discord rejected credentials for channel %s: %w", channel, err),
			}
		case http.StatusTooManyRequests:
			return &Error{
				Kind:        KindTransient,
				RateLimited: true,
				Err:         fmt.Errorf("discord rate limited channel %s: %w", channel, err),
			}
		case http.StatusBadRequest, http.StatusNotFound:
			return Permanent(fmt.Errorf("discord rejected message for channel %s: %w", channel, err))
		}
	}
	if _, ok := err.(*discordgo.RateLimitError); ok {
		return &Error{
			Kind:        KindTransient,
			RateLimited: true,
			Err:         fmt.Errorf("discord rate limited channel %s: %w", channel, err),
		}
	}
	return Transient(fmt.Errorf("discord call failed for channel %s: %w", channel, err))
}
