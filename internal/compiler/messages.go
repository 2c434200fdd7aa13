package compiler

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Supported message languages.
var (
	English    = language.English
	Simplified = language.SimplifiedChinese
)

var messagesEN = map[string]string{
	ErrUnknownClass:         "class %s is not registered in the catalog",
	ErrUnresolvedTarget:     "%s target %q does not resolve",
	ErrAmbiguous:            "%s is ambiguous between %s",
	ErrDynamicReturn:        "dynamic chain owner %s returns %s; want bool, string, enum, ir.Branch or nothing",
	ErrDecisionReturn:       "decision owner %s returns %s; want bool, string, enum or ir.Branch",
	ErrDecisionNoTargets:    "decision on %s declares no targets",
	ErrDuplicateBranch:      "decision on %s declares branch %q more than once",
	ErrUnmatchedEnum:        "decision on %s: enum value %q has no target",
	ErrForkTargets:          "fork on %s needs at least 2 targets, has %d",
	ErrUnsatisfiable:        "target %s cannot be bound: %s",
	ErrAsyncNoOverload:      "async on %s: no overload of %q matches collaborators [%s]",
	ErrAsyncManyOverloads:   "async on %s: overloads of %q all match collaborators: %s",
	ErrCatchSignature:       "catch handler %s must take exactly one error parameter",
	ErrCatchDuplicate:       "catch on %s: more than one handler accepts %s",
	ErrUnknownPool:          "%s on %s uses unknown worker pool %q",
	ErrCycle:                "directive targets form a cycle: %s",
	ErrUnknownOwner:         "%s directive owner %q does not resolve",
	ErrDuplicateKind:        "%s declares more than one %s directive",
	ErrDynamicBefore:        "dynamic chain on %s must run after its owner",
	ErrBoolDecisionTargets:  "boolean decision on %s declares %d targets; at most 2",
	ErrManifest:             "manifest: %s",
	ErrChainNoTargets:       "chain on %s declares no targets",
	ErrUnsupportedDirective: "unsupported directive type %s",
}

var messagesZH = map[string]string{
	ErrUnknownClass:         "类 %s 未在目录中注册",
	ErrUnresolvedTarget:     "%s 的目标 %q 无法解析",
	ErrAmbiguous:            "%s 存在歧义：%s",
	ErrDynamicReturn:        "动态链所有者 %s 返回 %s；需要 bool、string、枚举、ir.Branch 或无返回值",
	ErrDecisionReturn:       "决策所有者 %s 返回 %s；需要 bool、string、枚举或 ir.Branch",
	ErrDecisionNoTargets:    "%s 上的决策没有声明目标",
	ErrDuplicateBranch:      "%s 上的决策重复声明了分支 %q",
	ErrUnmatchedEnum:        "%s 上的决策：枚举值 %q 没有对应目标",
	ErrForkTargets:          "%s 上的分叉至少需要 2 个目标，实际 %d 个",
	ErrUnsatisfiable:        "目标 %s 无法绑定：%s",
	ErrAsyncNoOverload:      "%s 上的异步：%q 没有与协作者 [%s] 匹配的重载",
	ErrAsyncManyOverloads:   "%s 上的异步：%q 的多个重载都与协作者匹配：%s",
	ErrCatchSignature:       "异常处理器 %s 必须只接受一个 error 参数",
	ErrCatchDuplicate:       "%s 上的捕获：多个处理器接受 %s",
	ErrUnknownPool:          "%s（%s）使用了未知的工作池 %q",
	ErrCycle:                "指令目标形成循环：%s",
	ErrUnknownOwner:         "%s 指令的所有者 %q 无法解析",
	ErrDuplicateKind:        "%s 声明了多个 %s 指令",
	ErrDynamicBefore:        "%s 上的动态链必须在所有者之后运行",
	ErrBoolDecisionTargets:  "%s 上的布尔决策声明了 %d 个目标；最多 2 个",
	ErrManifest:             "清单：%s",
	ErrChainNoTargets:       "%s 上的链没有声明目标",
	ErrUnsupportedDirective: "不支持的指令类型 %s",
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(English))
	for code, msg := range messagesEN {
		_ = b.SetString(English, code, msg)
	}
	for code, msg := range messagesZH {
		_ = b.SetString(Simplified, code, msg)
	}
	return b
}

func newPrinter(lang language.Tag) *message.Printer {
	if lang == language.Und {
		lang = English
	}
	return message.NewPrinter(lang, message.Catalog(messages))
}
