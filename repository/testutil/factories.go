package testutil

import (
	"chitfund/models"
)

// CreateTestBid creates a bid with default values for a given group and month
func CreateTestBid(groupID, username string, amount int64, month int) *models.Bid {
	return &models.Bid{
		GroupID:  groupID,
		Username: username,
		Amount:   amount,
		Month:    month,
	}
}

// CreateTestTransfer creates a system-to-user transfer record
func CreateTestTransfer(toAccount string, amount int64, description string) *models.Transfer {
	return &models.Transfer{
		FromAccount: models.SystemAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Description: description,
	}
}
