package domain

// 角色与能力：封闭枚举 + 显式能力表。
// 权限面一律通过 RoleAllows/RoleRank 判定，不在 handler 里散落字符串比较。
// 角色只在所属租户内生效。

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Capability 租户内能力
type Capability string

const (
	CapManageTenant      Capability = "manage_tenant"      // 租户资料、设置、域名
	CapManageMembers     Capability = "manage_members"     // 移除成员
	CapManageInvitations Capability = "manage_invitations" // 创建/撤销邀请
	CapWriteRecords      Capability = "write_records"      // 业务数据写入
	CapViewRecords       Capability = "view_records"       // 业务数据读取
)

// roleCapabilities 每个角色的能力表（显式列出，便于审计）
var roleCapabilities = map[string][]Capability{
	RoleOwner: {
		CapManageTenant, CapManageMembers, CapManageInvitations,
		CapWriteRecords, CapViewRecords,
	},
	RoleAdmin: {
		CapManageTenant, CapManageMembers, CapManageInvitations,
		CapWriteRecords, CapViewRecords,
	},
	RoleMember: {
		CapWriteRecords, CapViewRecords,
	},
	RoleViewer: {
		CapViewRecords,
	},
}

// roleRanks owner > admin > member > viewer；
// 用于"不能操作不低于自己"类规则（如移除成员）
var roleRanks = map[string]int{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleMember: 2,
	RoleViewer: 1,
}

// ValidRole 角色是否在封闭枚举内
func ValidRole(role string) bool {
	_, ok := roleRanks[role]
	return ok
}

// RoleAllows 角色是否具备某能力
func RoleAllows(role string, cap Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == cap {
			return true
		}
	}
	return false
}

// RoleRank 角色等级（未知角色返回 0）
func RoleRank(role string) int {
	return roleRanks[role]
}
