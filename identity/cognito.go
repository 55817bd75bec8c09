package identity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// cognitoAPI is the subset of the Cognito client the adapter calls.
type cognitoAPI interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	AdminConfirmSignUp(ctx context.Context, in *cip.AdminConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.AdminConfirmSignUpOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, in *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, in *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
	GetUser(ctx context.Context, in *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
	ListUsers(ctx context.Context, in *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminGetUser(ctx context.Context, in *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
}

var errorCodes = map[string]error{
	"UsernameExistsException":   ErrIdentityExists,
	"InvalidPasswordException":  ErrInvalidPassword,
	"InvalidParameterException": ErrInvalidParameter,
	"CodeMismatchException":     ErrCodeMismatch,
	"ExpiredCodeException":      ErrCodeExpired,
	"UserNotFoundException":     ErrIdentityNotFound,
	"NotAuthorizedException":    ErrNotAuthorized,
	"UserNotConfirmedException": ErrNotConfirmed,
}

// CognitoProvider implements Provider on AWS Cognito user pools.
type CognitoProvider struct {
	api     cognitoAPI
	tenants Tenants
	logger  *zap.Logger
}

// NewCognitoProvider wraps a Cognito client. Both pools share the client;
// the tenant only changes pool id, client id and secret.
func NewCognitoProvider(api cognitoAPI, tenants Tenants, logger *zap.Logger) *CognitoProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CognitoProvider{api: api, tenants: tenants, logger: logger}
}

// NewCognitoClient builds the SDK client from an AWS configuration.
func NewCognitoClient(cfg aws.Config) *cip.Client {
	return cip.NewFromConfig(cfg)
}

func (p *CognitoProvider) Register(ctx context.Context, t Tenant, username, password string, attrs map[string]string) (Registration, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Registration{}, err
	}

	out, err := p.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(tc.ClientID),
		Username:       aws.String(username),
		Password:       aws.String(password),
		SecretHash:     aws.String(SecretHash(username, tc.ClientID, tc.ClientSecret)),
		UserAttributes: toAttributes(attrs),
	})
	if err != nil {
		return Registration{}, p.mapError("sign up", t, err)
	}

	return Registration{
		Subject:   aws.ToString(out.UserSub),
		Confirmed: out.UserConfirmed,
		Delivery:  toDelivery(out.CodeDeliveryDetails),
	}, nil
}

func (p *CognitoProvider) ConfirmRegistration(ctx context.Context, t Tenant, username, code string) error {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return err
	}
	_, err = p.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(tc.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		SecretHash:       aws.String(SecretHash(username, tc.ClientID, tc.ClientSecret)),
	})
	if err != nil {
		return p.mapError("confirm sign up", t, err)
	}
	return nil
}

func (p *CognitoProvider) AdminConfirm(ctx context.Context, t Tenant, username string) error {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return err
	}
	_, err = p.api.AdminConfirmSignUp(ctx, &cip.AdminConfirmSignUpInput{
		UserPoolId: aws.String(tc.PoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return p.mapError("admin confirm sign up", t, err)
	}
	return nil
}

func (p *CognitoProvider) MarkVerified(ctx context.Context, t Tenant, username, attribute string) error {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return err
	}
	_, err = p.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(tc.PoolID),
		Username:       aws.String(username),
		UserAttributes: toAttributes(map[string]string{attribute: "true"}),
	})
	if err != nil {
		return p.mapError("mark verified", t, err)
	}
	return nil
}

func (p *CognitoProvider) ResendCode(ctx context.Context, t Tenant, username string) (CodeDelivery, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return CodeDelivery{}, err
	}
	out, err := p.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(tc.ClientID),
		Username:   aws.String(username),
		SecretHash: aws.String(SecretHash(username, tc.ClientID, tc.ClientSecret)),
	})
	if err != nil {
		return CodeDelivery{}, p.mapError("resend code", t, err)
	}
	if d := toDelivery(out.CodeDeliveryDetails); d != nil {
		return *d, nil
	}
	return CodeDelivery{}, nil
}

// ResendCodeSMS re-sends the invitation through SMS via the admin API.
func (p *CognitoProvider) ResendCodeSMS(ctx context.Context, t Tenant, username string) error {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return err
	}
	_, err = p.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(tc.PoolID),
		Username:               aws.String(username),
		MessageAction:          types.MessageActionTypeResend,
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeSms},
	})
	if err != nil {
		return p.mapError("resend sms", t, err)
	}
	return nil
}

func (p *CognitoProvider) InitiateCustomAuth(ctx context.Context, t Tenant, username string) (Challenge, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Challenge{}, err
	}
	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeCustomAuth,
		ClientId: aws.String(tc.ClientID),
		AuthParameters: map[string]string{
			"USERNAME":    username,
			"SECRET_HASH": SecretHash(username, tc.ClientID, tc.ClientSecret),
		},
	})
	if err != nil {
		return Challenge{}, p.mapError("initiate custom auth", t, err)
	}
	return Challenge{
		Session: aws.ToString(out.Session),
		Name:    string(out.ChallengeName),
	}, nil
}

func (p *CognitoProvider) RespondToChallenge(ctx context.Context, t Tenant, username, session, answer string) (Tokens, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Tokens{}, err
	}
	out, err := p.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ClientId:      aws.String(tc.ClientID),
		ChallengeName: types.ChallengeNameTypeCustomChallenge,
		Session:       aws.String(session),
		ChallengeResponses: map[string]string{
			"USERNAME":    username,
			"ANSWER":      answer,
			"SECRET_HASH": SecretHash(username, tc.ClientID, tc.ClientSecret),
		},
	})
	if err != nil {
		return Tokens{}, p.mapError("respond to challenge", t, err)
	}
	if out.AuthenticationResult == nil {
		// Another challenge round means the answer was not accepted.
		return Tokens{}, &ProviderError{
			Op:      "respond to challenge",
			Message: "Invalid verification code",
			Err:     ErrNotAuthorized,
		}
	}
	return toTokens(out.AuthenticationResult), nil
}

func (p *CognitoProvider) PasswordAuth(ctx context.Context, t Tenant, username, password string) (Tokens, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Tokens{}, err
	}
	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(tc.ClientID),
		AuthParameters: map[string]string{
			"USERNAME":    username,
			"PASSWORD":    password,
			"SECRET_HASH": SecretHash(username, tc.ClientID, tc.ClientSecret),
		},
	})
	if err != nil {
		return Tokens{}, p.mapError("password auth", t, err)
	}
	if out.AuthenticationResult == nil {
		return Tokens{}, &ProviderError{
			Op:      "password auth",
			Code:    string(out.ChallengeName),
			Message: "Additional challenge required: " + string(out.ChallengeName),
			Err:     ErrNotAuthorized,
		}
	}
	return toTokens(out.AuthenticationResult), nil
}

func (p *CognitoProvider) GetUserByToken(ctx context.Context, t Tenant, accessToken string) (Identity, error) {
	out, err := p.api.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		mapped := p.mapError("get user", t, err)
		if errors.Is(mapped, ErrNotAuthorized) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, mapped
	}
	username := aws.ToString(out.Username)
	if username == "" {
		return Identity{}, ErrInvalidToken
	}
	return NewIdentity(username, fromAttributes(out.UserAttributes)), nil
}

// FindByPhone lists the pool with a phone filter. Cognito evaluates the
// filter by scanning the pool.
func (p *CognitoProvider) FindByPhone(ctx context.Context, t Tenant, phone string) (Identity, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Identity{}, err
	}
	out, err := p.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(tc.PoolID),
		Filter:     aws.String(AttrPhone + ` = "` + escapeFilter(phone) + `"`),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return Identity{}, p.mapError("list users", t, err)
	}
	if len(out.Users) == 0 {
		return Identity{}, ErrIdentityNotFound
	}
	u := out.Users[0]
	return NewIdentity(aws.ToString(u.Username), fromAttributes(u.Attributes)), nil
}

func (p *CognitoProvider) GetUserAttributes(ctx context.Context, t Tenant, username string) (Identity, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return Identity{}, err
	}
	out, err := p.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(tc.PoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return Identity{}, p.mapError("admin get user", t, err)
	}
	return NewIdentity(aws.ToString(out.Username), fromAttributes(out.UserAttributes)), nil
}

func (p *CognitoProvider) ForgotPassword(ctx context.Context, t Tenant, username string) (CodeDelivery, error) {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return CodeDelivery{}, err
	}
	out, err := p.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(tc.ClientID),
		Username:   aws.String(username),
		SecretHash: aws.String(SecretHash(username, tc.ClientID, tc.ClientSecret)),
	})
	if err != nil {
		return CodeDelivery{}, p.mapError("forgot password", t, err)
	}
	if d := toDelivery(out.CodeDeliveryDetails); d != nil {
		return *d, nil
	}
	return CodeDelivery{}, nil
}

func (p *CognitoProvider) ConfirmForgotPassword(ctx context.Context, t Tenant, username, code, newPassword string) error {
	tc, err := p.tenants.Get(t)
	if err != nil {
		return err
	}
	_, err = p.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(tc.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       aws.String(SecretHash(username, tc.ClientID, tc.ClientSecret)),
	})
	if err != nil {
		return p.mapError("confirm forgot password", t, err)
	}
	return nil
}

func (p *CognitoProvider) mapError(op string, t Tenant, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		p.logger.Warn("identity provider call failed",
			zap.String("op", op),
			zap.Stringer("tenant", t),
			zap.Error(err))
		return &ProviderError{Op: op, Err: err}
	}

	pe := &ProviderError{
		Op:      op,
		Code:    apiErr.ErrorCode(),
		Message: apiErr.ErrorMessage(),
		Err:     err,
	}
	if sentinel, ok := errorCodes[pe.Code]; ok {
		pe.Err = sentinel
	} else {
		p.logger.Warn("unmapped identity provider error",
			zap.String("op", op),
			zap.Stringer("tenant", t),
			zap.String("code", pe.Code),
			zap.String("message", pe.Message))
	}
	return pe
}

func toAttributes(attrs map[string]string) []types.AttributeType {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.AttributeType, 0, len(attrs))
	for _, name := range names {
		out = append(out, types.AttributeType{Name: aws.String(name), Value: aws.String(attrs[name])})
	}
	return out
}

func fromAttributes(attrs []types.AttributeType) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return out
}

func toDelivery(d *types.CodeDeliveryDetailsType) *CodeDelivery {
	if d == nil {
		return nil
	}
	return &CodeDelivery{
		Destination:   aws.ToString(d.Destination),
		Medium:        string(d.DeliveryMedium),
		AttributeName: aws.ToString(d.AttributeName),
	}
}

func toTokens(r *types.AuthenticationResultType) Tokens {
	return Tokens{
		AccessToken:  aws.ToString(r.AccessToken),
		IDToken:      aws.ToString(r.IdToken),
		RefreshToken: aws.ToString(r.RefreshToken),
		ExpiresIn:    r.ExpiresIn,
	}
}

func escapeFilter(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
