package notify

import (
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
)

// FilterRecipients narrows the active recipient list down to the audience of
// one message. Test messages go only to test accounts, augmented with the
// designated test phone; production messages skip test accounts. An excluded
// phone (the person who triggered the message) never receives its own copy.
func FilterRecipients(recipients []Recipient, channel, excludePhone string, isTest bool) []Recipient {
	filtered := make([]Recipient, 0, len(recipients))
	testPhonePresent := false

	for _, recipient := range recipients {
		if !recipient.Active {
			continue
		}

		if recipient.IsTest != isTest {
			continue
		}

		if !recipient.SubscribedTo(channel) {
			continue
		}

		if excludePhone != "" && recipient.Phone == excludePhone {
			continue
		}

		if recipient.Phone == config.Conf.TestRecipientPhone {
			testPhonePresent = true
		}

		filtered = append(filtered, recipient)
	}

	if isTest && !testPhonePresent && config.Conf.TestRecipientPhone != "" {
		filtered = append(filtered, Recipient{
			DisplayName: "Test Account",
			Phone:       config.Conf.TestRecipientPhone,
			IsTest:      true,
			Active:      true,
		})
	}

	return filtered
}
