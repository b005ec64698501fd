package service

import "planify-notification/internal/model"

// Aggregate reduces channel attempts to a dispatch outcome: SENT iff any
// attempt succeeded. The email provider id is preferred over the SMS one.
func Aggregate(results []model.ChannelResult) (status model.Status, errMsg string, externalID string) {
	var emailID, smsID string
	sent := false
	for _, r := range results {
		if !r.OK() {
			continue
		}
		sent = true
		switch r.Channel {
		case model.ChannelEmail:
			if emailID == "" {
				emailID = r.ExternalID
			}
		case model.ChannelSMS:
			if smsID == "" {
				smsID = r.ExternalID
			}
		}
	}

	if !sent {
		return model.StatusFailed, model.NoChannelSucceeded, ""
	}
	if emailID != "" {
		return model.StatusSent, "", emailID
	}
	return model.StatusSent, "", smsID
}
