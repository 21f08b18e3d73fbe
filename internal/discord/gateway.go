package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// This file implements the collaborator surface the core components consume:
// message sending, role mutation by name, and voice-presence queries. Roles
// are referenced by name everywhere in the bot and resolved to ids here;
// names missing from the guild are skipped silently apart from a log line.

// SendMessage sends a plain text message to a channel.
func (b *Bot) SendMessage(channelID, content string) error {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return nil
}

// AddRole grants a role by name. A role name unknown to the guild is not an
// error.
func (b *Bot) AddRole(userID, roleName string) error {
	roleID, ok := b.roleID(roleName)
	if !ok {
		b.logger.Warn("role not found, skipping grant", "role", roleName)
		return nil
	}
	if err := b.session.GuildMemberRoleAdd(b.guildID, userID, roleID); err != nil {
		return fmt.Errorf("failed to add role %q to %s: %w", roleName, userID, err)
	}
	return nil
}

// RemoveRole revokes a role by name. A role name unknown to the guild is not
// an error.
func (b *Bot) RemoveRole(userID, roleName string) error {
	roleID, ok := b.roleID(roleName)
	if !ok {
		b.logger.Warn("role not found, skipping removal", "role", roleName)
		return nil
	}
	if err := b.session.GuildMemberRoleRemove(b.guildID, userID, roleID); err != nil {
		return fmt.Errorf("failed to remove role %q from %s: %w", roleName, userID, err)
	}
	return nil
}

// Roles returns the set of role names a member currently holds.
func (b *Bot) Roles(userID string) (map[string]bool, error) {
	member, err := b.member(userID)
	if err != nil {
		return nil, err
	}

	byID := b.roleNamesByID()
	held := make(map[string]bool, len(member.Roles))
	for _, roleID := range member.Roles {
		if name, ok := byID[roleID]; ok {
			held[name] = true
		}
	}
	return held, nil
}

// MembersWithRole returns the ids of all members holding the named role.
// An unknown role name yields an empty result.
func (b *Bot) MembersWithRole(roleName string) ([]string, error) {
	roleID, ok := b.roleID(roleName)
	if !ok {
		return nil, nil
	}

	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read guild state: %w", err)
	}

	var holders []string
	for _, member := range guild.Members {
		for _, id := range member.Roles {
			if id == roleID {
				holders = append(holders, member.User.ID)
				break
			}
		}
	}
	return holders, nil
}

// UserChannel returns the voice channel the user currently occupies in the
// guild, from gateway state.
func (b *Bot) UserChannel(userID string) (string, bool) {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// NonBotMemberCount counts non-bot members currently in a voice channel.
func (b *Bot) NonBotMemberCount(channelID string) (int, error) {
	guild, err := b.session.State.Guild(b.guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to read guild state: %w", err)
	}

	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if member, err := b.session.State.Member(b.guildID, vs.UserID); err == nil &&
			member.User != nil && member.User.Bot {
			continue
		}
		count++
	}
	return count, nil
}

// roleID resolves a role name to its id via guild state, falling back to the
// REST API when state is cold.
func (b *Bot) roleID(roleName string) (string, bool) {
	if guild, err := b.session.State.Guild(b.guildID); err == nil {
		for _, role := range guild.Roles {
			if role.Name == roleName {
				return role.ID, true
			}
		}
	}

	roles, err := b.session.GuildRoles(b.guildID)
	if err != nil {
		b.logger.Warn("failed to list guild roles", "error", err)
		return "", false
	}
	for _, role := range roles {
		if role.Name == roleName {
			return role.ID, true
		}
	}
	return "", false
}

func (b *Bot) roleNamesByID() map[string]string {
	byID := make(map[string]string)
	if guild, err := b.session.State.Guild(b.guildID); err == nil {
		for _, role := range guild.Roles {
			byID[role.ID] = role.Name
		}
	}
	return byID
}

func (b *Bot) member(userID string) (*discordgo.Member, error) {
	if member, err := b.session.State.Member(b.guildID, userID); err == nil {
		return member, nil
	}
	member, err := b.session.GuildMember(b.guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}
	return member, nil
}
