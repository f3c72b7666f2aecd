// Package model 包含了应用的数据模型定义。
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidPreference 表示偏好取值不在枚举范围内。
var ErrInvalidPreference = errors.New("invalid preference value")

// UserType 提问者身份。
type UserType string

// Urgency 紧急程度。
type Urgency string

// ResponseLength 期望的回答长度。
type ResponseLength string

const (
	UserTypePatient                UserType = "Patient"
	UserTypeHealthcareProfessional UserType = "Healthcare Professional"
	UserTypeStudent                UserType = "Student"
)

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

const (
	ResponseLengthConcise  ResponseLength = "Concise"
	ResponseLengthModerate ResponseLength = "Moderate"
	ResponseLengthDetailed ResponseLength = "Detailed"
)

// UserTypes 按展示顺序列出所有身份。
var UserTypes = []UserType{UserTypePatient, UserTypeHealthcareProfessional, UserTypeStudent}

// Urgencies 按展示顺序列出所有紧急程度。
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh}

// ResponseLengths 按展示顺序列出所有回答长度。
var ResponseLengths = []ResponseLength{ResponseLengthConcise, ResponseLengthModerate, ResponseLengthDetailed}

func (u UserType) Valid() bool {
	for _, v := range UserTypes {
		if u == v {
			return true
		}
	}
	return false
}

func (u Urgency) Valid() bool {
	for _, v := range Urgencies {
		if u == v {
			return true
		}
	}
	return false
}

func (r ResponseLength) Valid() bool {
	for _, v := range ResponseLengths {
		if r == v {
			return true
		}
	}
	return false
}

// Preferences 是用户偏好记录，三个字段始终完整。
type Preferences struct {
	UserType       UserType       `json:"userType"`
	Urgency        Urgency        `json:"urgency"`
	ResponseLength ResponseLength `json:"responseLength"`
}

// DefaultPreferences 返回默认偏好：Patient / Medium / Moderate。
func DefaultPreferences() Preferences {
	return Preferences{
		UserType:       UserTypePatient,
		Urgency:        UrgencyMedium,
		ResponseLength: ResponseLengthModerate,
	}
}

// PreferencePatch 描述一次部分更新，nil 字段保持原值。
type PreferencePatch struct {
	UserType       *UserType       `json:"userType,omitempty"`
	Urgency        *Urgency        `json:"urgency,omitempty"`
	ResponseLength *ResponseLength `json:"responseLength,omitempty"`
}

// Apply 把 patch 应用到 base 上并返回新值。任一字段越界时整体拒绝，base 不受影响。
func (p PreferencePatch) Apply(base Preferences) (Preferences, error) {
	next := base
	if p.UserType != nil {
		if !p.UserType.Valid() {
			return base, fmt.Errorf("%w: userType %q", ErrInvalidPreference, *p.UserType)
		}
		next.UserType = *p.UserType
	}
	if p.Urgency != nil {
		if !p.Urgency.Valid() {
			return base, fmt.Errorf("%w: urgency %q", ErrInvalidPreference, *p.Urgency)
		}
		next.Urgency = *p.Urgency
	}
	if p.ResponseLength != nil {
		if !p.ResponseLength.Valid() {
			return base, fmt.Errorf("%w: responseLength %q", ErrInvalidPreference, *p.ResponseLength)
		}
		next.ResponseLength = *p.ResponseLength
	}
	return next, nil
}
