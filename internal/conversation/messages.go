package conversation

const (
	msgWelcome             = "مرحبا ببوت استخراج ملفات العلامات لكلية الهندسة المعلوماتية بدمشق\nاختر القسم:"
	msgChooseYear          = "اختر العام:"
	msgChooseSeason        = "اختر الفصل الدراسي:"
	msgProcessing          = "يتم معالجة الطلب و ارسال الملفات ..."
	msgChooseFile          = "اختر الملف الذي تريد تحميله:"
	msgFetchFailed         = "فشل في جلب البيانات: %s"
	msgNoResults           = "لم يتم العثور على بيانات للمعايير المحددة."
	msgLinkNotFound        = "فشل في العثور على الرابط."
	msgDownloadFailed      = "فشل في تنزيل الملف."
	msgItemFailed          = "فشل في تنزيل الملف: %s"
	msgDownloadingAll      = "جاري تنزيل الملفات..."
	msgDownloadedAll       = "تم تنزيل جميع الملفات بنجاح."
	msgCancelled           = "تم إلغاء العملية."
	msgConversationExpired = "انتهت صلاحية الجلسة، أرسل /start للبدء من جديد."
	msgContact             = "يمكنك التواصل بمطور البوت من خلال المعرف : @Qusai_Salwm"
	msgDownloadAllLabel    = "📦 تحميل جميع الملفات (%d)"
	msgPageLabel           = " 📄 %d/%d"
)
