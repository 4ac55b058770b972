package auth

import (
	"context"
	"strings"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/mudichurmart/storefront/internal/aws"
)

// User is the signed-in shopper or admin.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

// Tokens are returned on sign-in.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int32  `json:"expiresIn"`
}

// Service talks to a Cognito user pool app client.
type Service struct {
	client   aws.CognitoAPI
	clientID string
	admins   map[string]bool
}

// NewService returns a Service. adminEmails are compared case-insensitively.
func NewService(client aws.CognitoAPI, clientID string, adminEmails []string) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Service{client: client, clientID: clientID, admins: admins}
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	out, err := s.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: ciptypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(s.clientID),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, classified("initiate auth", err)
	}
	res := out.AuthenticationResult
	if res == nil {
		// challenges such as NEW_PASSWORD_REQUIRED are not handled here
		return nil, &Error{Category: Unknown}
	}
	return &Tokens{
		AccessToken:  deref(res.AccessToken),
		IDToken:      deref(res.IdToken),
		RefreshToken: deref(res.RefreshToken),
		ExpiresIn:    res.ExpiresIn,
	}, nil
}

// SignUp registers a new account and returns its id. Confirmation happens
// out of band.
func (s *Service) SignUp(ctx context.Context, email, password string) (*User, error) {
	out, err := s.client.SignUp(ctx, &cip.SignUpInput{
		ClientId: aws.String(s.clientID),
		Username: aws.String(email),
		Password: aws.String(password),
		UserAttributes: []ciptypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	if err != nil {
		return nil, classified("sign up", err)
	}
	return &User{ID: deref(out.UserSub), Email: email, Admin: s.IsAdmin(email)}, nil
}

func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if _, err := s.client.GlobalSignOut(ctx, &cip.GlobalSignOutInput{AccessToken: aws.String(accessToken)}); err != nil {
		return classified("global sign out", err)
	}
	return nil
}

// CurrentUser resolves an access token. An expired or revoked token is
// reported as Unauthenticated.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, &Error{Category: Unauthenticated}
	}
	out, err := s.client.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		if aws.ErrorCode(err) == "NotAuthorizedException" {
			return nil, &Error{Category: Unauthenticated, Err: err}
		}
		return nil, classified("get user", err)
	}

	u := &User{ID: deref(out.Username)}
	for _, a := range out.UserAttributes {
		switch deref(a.Name) {
		case "sub":
			u.ID = deref(a.Value)
		case "email":
			u.Email = deref(a.Value)
		}
	}
	u.Admin = s.IsAdmin(u.Email)
	return u, nil
}

func (s *Service) IsAdmin(email string) bool {
	return s.admins[strings.ToLower(email)]
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
