package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/mudichurmart/storefront/internal/aws"
)

// ErrNoUserPool is returned by a Directory built without a user pool id.
var ErrNoUserPool = errors.New("user pool is not configured")

const (
	listUsersPageSize = 60 // Cognito maximum
	listUsersMaxPages = 20
)

// Customer is an account as the back office sees it.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Directory lists the accounts of a Cognito user pool.
type Directory struct {
	client     aws.CognitoAPI
	userPoolID string
}

func NewDirectory(client aws.CognitoAPI, userPoolID string) *Directory {
	return &Directory{client: client, userPoolID: userPoolID}
}

// ListCustomers returns accounts whose name or email contains query, ignoring
// case, newest first. An empty query matches everyone. Cognito filters only
// by prefix on a single attribute, so matching happens here.
func (d *Directory) ListCustomers(ctx context.Context, query string) ([]Customer, error) {
	if d.userPoolID == "" {
		return nil, ErrNoUserPool
	}
	q := strings.ToLower(strings.TrimSpace(query))

	var (
		out   []Customer
		token *string
	)
	for page := 0; page < listUsersMaxPages; page++ {
		res, err := d.client.ListUsers(ctx, &cip.ListUsersInput{
			UserPoolId:      aws.String(d.userPoolID),
			Limit:           aws.Int32(listUsersPageSize),
			PaginationToken: token,
		})
		if err != nil {
			return nil, classified("list users", err)
		}
		for _, u := range res.Users {
			c := customerFrom(u)
			if q == "" || strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
				out = append(out, c)
			}
		}
		if res.PaginationToken == nil || *res.PaginationToken == "" {
			break
		}
		token = res.PaginationToken
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func customerFrom(u ciptypes.UserType) Customer {
	c := Customer{
		ID:      deref(u.Username),
		Status:  string(u.UserStatus),
		Enabled: u.Enabled,
	}
	if u.UserCreateDate != nil {
		c.CreatedAt = u.UserCreateDate.UTC()
	}
	for _, a := range u.Attributes {
		switch deref(a.Name) {
		case "sub":
			c.ID = deref(a.Value)
		case "email":
			c.Email = deref(a.Value)
		case "name":
			c.Name = deref(a.Value)
		case "phone_number":
			c.Phone = deref(a.Value)
		}
	}
	return c
}
