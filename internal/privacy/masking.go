package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskJID masks a WhatsApp JID, keeping the domain and the last 4 digits of
// the user part. Example: "1234567890@s.whatsapp.net" -> "******7890@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	if idx := strings.Index(jid, "@"); idx >= 0 {
		userPart := jid[:idx]
		domainPart := jid[idx:]

		if len(userPart) <= 4 {
			return strings.Repeat("*", len(userPart)) + domainPart
		}
		return strings.Repeat("*", len(userPart)-4) + userPart[len(userPart)-4:] + domainPart
	}

	if len(jid) <= 4 {
		return strings.Repeat("*", len(jid))
	}
	return strings.Repeat("*", len(jid)-4) + jid[len(jid)-4:]
}

// MaskMessageID masks a message ID while preserving the tail for correlation
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// MaskSessionName masks a session name while keeping the tail readable
func MaskSessionName(sessionName string) string {
	return maskString(sessionName, 4)
}

func maskString(s string, visible int) string {
	if s == "" {
		return ""
	}
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
