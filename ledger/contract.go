package ledger

// rewardTokenABI covers the subset of the campus token contract this service
// calls: ERC-20 reads plus the achievement/perk catalog and grant methods.
const rewardTokenABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"registerStudent","stateMutability":"nonpayable","inputs":[{"name":"student","type":"address"}],"outputs":[]},
  {"type":"function","name":"achievementExists","stateMutability":"view","inputs":[{"name":"title","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"perkExists","stateMutability":"view","inputs":[{"name":"title","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"addAchievement","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"},{"name":"tokenReward","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"addPerk","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"},{"name":"tokenCost","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"updateAchievement","stateMutability":"nonpayable","inputs":[{"name":"oldTitle","type":"string"},{"name":"newTitle","type":"string"},{"name":"tokenReward","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"updatePerk","stateMutability":"nonpayable","inputs":[{"name":"oldTitle","type":"string"},{"name":"newTitle","type":"string"},{"name":"tokenCost","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"deactivateAchievement","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"}],"outputs":[]},
  {"type":"function","name":"deactivatePerk","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"}],"outputs":[]},
  {"type":"function","name":"grantAchievement","stateMutability":"nonpayable","inputs":[{"name":"student","type":"address"},{"name":"title","type":"string"}],"outputs":[]},
  {"type":"function","name":"redeemPerk","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"}],"outputs":[]},
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Per-kind contract method names.
var catalogMethods = map[CatalogKind]struct {
	exists     string
	add        string
	update     string
	deactivate string
}{
	KindAchievement: {"achievementExists", "addAchievement", "updateAchievement", "deactivateAchievement"},
	KindPerk:        {"perkExists", "addPerk", "updatePerk", "deactivatePerk"},
}
