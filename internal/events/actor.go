package events

// Actor 触发事件的身份
type Actor interface {
	ActorPrincipalID() string
	isActor()
}

type UserActor struct {
	PrincipalID string `json:"principalId"`
	UserID      string `json:"userId"`
	Email       string `json:"email"`
}

type ServiceActor struct {
	PrincipalID string `json:"principalId"`
	DisplayName string `json:"displayName"`
}

func (a UserActor) ActorPrincipalID() string    { return a.PrincipalID }
func (a ServiceActor) ActorPrincipalID() string { return a.PrincipalID }

func (UserActor) isActor()    {}
func (ServiceActor) isActor() {}

type ActorInput struct {
	PrincipalID string
	UserID      *string
	Email       string
	DisplayName string
}

// BuildEventActor 有 userId 的是用户，否则是服务身份（API key、集成）
func BuildEventActor(in ActorInput) Actor {
	if in.UserID != nil && *in.UserID != "" {
		return UserActor{
			PrincipalID: in.PrincipalID,
			UserID:      *in.UserID,
			Email:       in.Email,
		}
	}
	return ServiceActor{
		PrincipalID: in.PrincipalID,
		DisplayName: in.DisplayName,
	}
}

// ActorName 展示用名称
func ActorName(actor Actor) string {
	switch a := actor.(type) {
	case UserActor:
		return a.Email
	case ServiceActor:
		return a.DisplayName
	default:
		return ""
	}
}
